package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const windowsSocketPort = ":7070" // You can change the port if needed

var osType = runtime.GOOS // Get the operating system type

// NewServer opens the notification socket and starts accepting local
// subscribers.
func NewServer() (*Server, error) {
	var listener net.Listener
	var err error

	socketPath := viper.GetString("notify_socket")

	if osType == "windows" {
		// On Windows, use TCP socket
		listener, err = net.Listen("tcp", windowsSocketPort)
	} else {
		// On Unix-like systems, use Unix socket
		// Check if the Unix socket file already exists
		if _, statErr := os.Stat(socketPath); statErr == nil {
			// Remove existing Unix socket file
			if err := os.Remove(socketPath); err != nil {
				return nil, fmt.Errorf("failed to remove existing socket file: %w", err)
			}
		}
		listener, err = net.Listen("unix", socketPath)
	}

	if err != nil {
		return nil, err
	}

	server := &Server{
		listener:    listener,
		subscribers: make(map[net.Conn]bool),
	}

	go server.accept()

	return server, nil
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var cmd Command
		if err := decoder.Decode(&cmd); err != nil {
			s.unsubscribe(conn)
			conn.Close()
			return
		}

		switch cmd.Command {
		case "subscribe":
			s.mutex.Lock()
			s.subscribers[conn] = true
			s.mutex.Unlock()
			encoder.Encode(Response{OK: true})
		case "unsubscribe":
			s.unsubscribe(conn)
			encoder.Encode(Response{OK: true})
		default:
			encoder.Encode(Response{OK: false, Error: "unknown command: " + cmd.Command})
		}
	}
}

func (s *Server) unsubscribe(conn net.Conn) {
	s.mutex.Lock()
	delete(s.subscribers, conn)
	s.mutex.Unlock()
}

// Publish pushes an event to every subscribed client. Implements the
// engine's Notifier.
func (s *Server) Publish(event string, data map[string]interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for conn := range s.subscribers {
		encoder := json.NewEncoder(conn)
		if err := encoder.Encode(Event{Type: event, Data: data}); err != nil {
			logrus.WithError(err).Debug("Dropping dead notification subscriber")
			delete(s.subscribers, conn)
			conn.Close()
		}
	}
}

// Close stops accepting and disconnects all subscribers.
func (s *Server) Close() {
	s.listener.Close()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for conn := range s.subscribers {
		conn.Close()
	}
	s.subscribers = make(map[net.Conn]bool)
}
