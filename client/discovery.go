package client

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/mbocsi/airlink/transport"
)

// DiscoveredService is a relay hub found on the local network.
type DiscoveredService struct {
	ServiceName string
	Address     string
	Port        int
	TXTRecords  []string
}

// URL is the WebSocket address of the hub.
func (s *DiscoveredService) URL() string {
	return "ws://" + net.JoinHostPort(s.Address, strconv.Itoa(s.Port)) + "/"
}

// discoverService returns the first instance of serviceType answering mDNS
// within timeout.
func discoverService(serviceType string, timeout time.Duration) (*DiscoveredService, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	entriesCh := make(chan *mdns.ServiceEntry, 4)

	go func() {
		defer close(entriesCh)
		mdns.Lookup(serviceType, entriesCh)
	}()

	select {
	case entry := <-entriesCh:
		if entry == nil {
			return nil, fmt.Errorf("no %s service found", serviceType)
		}

		var address string
		if entry.AddrV4 != nil {
			address = entry.AddrV4.String()
		} else if entry.AddrV6 != nil {
			address = entry.AddrV6.String()
		} else {
			return nil, fmt.Errorf("no valid address found for service")
		}

		service := &DiscoveredService{
			ServiceName: entry.Name,
			Address:     address,
			Port:        entry.Port,
			TXTRecords:  entry.InfoFields,
		}

		slog.Info("Discovered relay hub",
			"service_name", service.ServiceName,
			"address", service.Address,
			"port", service.Port,
		)
		return service, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("mDNS discovery timeout for %s", serviceType)
	}
}

// DiscoverRelay finds the first relay hub advertising on the local network.
func DiscoverRelay(timeout time.Duration) (*DiscoveredService, error) {
	return discoverService(transport.ServiceType, timeout)
}
