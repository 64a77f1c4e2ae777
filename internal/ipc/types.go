package ipc

import (
	"net"
	"sync"
)

// Event is a JSON frame pushed to subscribed clients when the engine has
// something the desktop should surface (new message, new contact request).
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// Command is a request frame from a local client.
type Command struct {
	Command string `json:"command"`
}

// Response answers a client command.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Server pushes engine events to local subscribers over a unix socket
// (TCP on Windows).
type Server struct {
	listener    net.Listener
	mutex       sync.Mutex
	subscribers map[net.Conn]bool
}
