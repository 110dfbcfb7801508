package types

import (
	"net"
	"strconv"
)

// ServerInfo describes one proxy listener
type ServerInfo struct {
	Hostname        string `json:"hostname"`
	Port            int    `json:"port"`
	CrossDomainPort int    `json:"crossDomainPort"`
	Domain          string `json:"domain"` // http://hostname:port
}

// NewServerInfo builds a ServerInfo with its Domain filled in
func NewServerInfo(hostname string, port, crossDomainPort int) ServerInfo {
	return ServerInfo{
		Hostname:        hostname,
		Port:            port,
		CrossDomainPort: crossDomainPort,
		Domain:          "http://" + net.JoinHostPort(hostname, strconv.Itoa(port)),
	}
}

// CrossDomain returns the info of the sibling listener serving
// cross-domain requests
func (s ServerInfo) CrossDomain() ServerInfo {
	return NewServerInfo(s.Hostname, s.CrossDomainPort, s.Port)
}
