package netlink

import (
	"context"
	"net"
	"sync"
)

// InterfaceLink considers the link associated once the interface is up
// with a routable IPv4 address. Association itself is left to the
// system (e.g. wpa_supplicant and dhcp).
type InterfaceLink struct {
	Interface string

	// Lookup is replaced in tests.
	Lookup func(name string) (Interface, error)

	lock      sync.Mutex
	requested bool
}

// Interface is the subset of net.Interface used by InterfaceLink.
type Interface interface {
	Up() bool
	Addrs() ([]net.Addr, error)
}

type netInterface struct {
	*net.Interface
}

func (i netInterface) Up() bool {
	return i.Flags&net.FlagUp != 0
}

func lookupInterface(name string) (Interface, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return netInterface{Interface: iface}, nil
}

// Connect implements Link.
func (l *InterfaceLink) Connect(context.Context, string, string) error {
	l.lock.Lock()
	l.requested = true
	l.lock.Unlock()
	return nil
}

// Status implements Link.
func (l *InterfaceLink) Status(context.Context) (Status, error) {
	l.lock.Lock()
	requested := l.requested
	l.lock.Unlock()
	if !requested {
		return StatusIdle, nil
	}
	lookup := l.Lookup
	if lookup == nil {
		lookup = lookupInterface
	}
	iface, err := lookup(l.Interface)
	if err != nil {
		// the interface may show up later
		return StatusAssociating, nil
	}
	if !iface.Up() {
		return StatusAssociating, nil
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return StatusAssociating, err
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			ip := ipnet.IP.To4()
			if ip != nil && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() {
				return StatusAssociated, nil
			}
		}
	}
	return StatusAssociating, nil
}
