package models

import (
	"fmt"
	"time"
)

// NodeType represents the protocol used to talk to a store
type NodeType string

const (
	NodeTypeDIMSE    NodeType = "dimse"
	NodeTypeDICOMWeb NodeType = "dicomweb"
)

// NodeConfig describes one DICOM node (a store reachable over DIMSE or DICOMweb)
type NodeConfig struct {
	Key            string   `json:"key"` // short name used on the command line
	Name           string   `json:"name"`
	Type           NodeType `json:"type"`
	AETitle        string   `json:"ae_title"`
	Host           string   `json:"ip_address"`
	Port           int      `json:"port"`
	TransferSyntax string   `json:"transfer_syntax,omitempty"`

	// DICOMweb only
	BasePath string `json:"base_path,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"`
	APIKey   string `json:"-"`
}

func (n NodeConfig) String() string {
	return fmt.Sprintf("%s (%s@%s:%d, %s)", n.Name, n.AETitle, n.Host, n.Port, n.Type)
}

// Destination is how a remote node addresses the local store for C-MOVE
type Destination struct {
	AETitle string `json:"ae_title"`
	Host    string `json:"ip_address"`
	Port    int    `json:"port"`
}

func (d Destination) String() string {
	return fmt.Sprintf("%s@%s:%d", d.AETitle, d.Host, d.Port)
}

// ConnectionStatus represents the status of a node connection
type ConnectionStatus struct {
	IsConnected  bool      `json:"is_connected"`
	LastChecked  time.Time `json:"last_checked"`
	ResponseTime int64     `json:"response_time_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
}
