package netlink

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/golang/glog"
)

const (
	nmService         = "org.freedesktop.NetworkManager"
	nmPath            = "/org/freedesktop/NetworkManager"
	nmIface           = "org.freedesktop.NetworkManager"
	nmActiveIface     = "org.freedesktop.NetworkManager.Connection.Active"
	dbusPropertiesGet = "org.freedesktop.DBus.Properties.Get"
)

// NetworkManager active connection states.
const (
	nmActiveStateUnknown uint32 = iota
	nmActiveStateActivating
	nmActiveStateActivated
	nmActiveStateDeactivating
	nmActiveStateDeactivated
)

// ObjectSource provides D-Bus objects, satisfied by *dbus.Conn.
type ObjectSource interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// NetworkManager associates WiFi through NetworkManager on the system bus.
type NetworkManager struct {
	Interface string

	bus    ObjectSource
	lock   sync.Mutex
	active dbus.ObjectPath
}

// NewNetworkManager connects to the system bus.
func NewNetworkManager(iface string) (*NetworkManager, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return NewNetworkManagerWith(conn, iface), nil
}

// NewNetworkManagerWith creates NetworkManager using the provided bus.
func NewNetworkManagerWith(bus ObjectSource, iface string) *NetworkManager {
	return &NetworkManager{Interface: iface, bus: bus}
}

func wifiSettings(ssid, credential string) map[string]map[string]dbus.Variant {
	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":   dbus.MakeVariant(ssid),
			"type": dbus.MakeVariant("802-11-wireless"),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(ssid)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
	}
	if credential != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(credential),
		}
	}
	return settings
}

// Connect implements Link.
func (m *NetworkManager) Connect(ctx context.Context, ssid, credential string) error {
	nm := m.bus.Object(nmService, nmPath)
	var device dbus.ObjectPath
	if err := nm.CallWithContext(ctx, nmIface+".GetDeviceByIpIface", 0, m.Interface).Store(&device); err != nil {
		return fmt.Errorf("find device %s: %w", m.Interface, err)
	}
	var settingsPath, active dbus.ObjectPath
	err := nm.CallWithContext(ctx, nmIface+".AddAndActivateConnection", 0,
		wifiSettings(ssid, credential), device, dbus.ObjectPath("/")).
		Store(&settingsPath, &active)
	if err != nil {
		return fmt.Errorf("activate %q: %w", ssid, err)
	}
	glog.V(2).Infof("nm: activating %s on %s", active, device)
	m.lock.Lock()
	m.active = active
	m.lock.Unlock()
	return nil
}

// Status implements Link.
func (m *NetworkManager) Status(ctx context.Context) (Status, error) {
	m.lock.Lock()
	active := m.active
	m.lock.Unlock()
	if active == "" {
		return StatusIdle, nil
	}
	var val dbus.Variant
	err := m.bus.Object(nmService, active).
		CallWithContext(ctx, dbusPropertiesGet, 0, nmActiveIface, "State").
		Store(&val)
	if err != nil {
		// the active connection object disappears when activation fails
		return StatusFailed, err
	}
	state, ok := val.Value().(uint32)
	if !ok {
		return StatusFailed, fmt.Errorf("unexpected active connection state %v", val)
	}
	switch state {
	case nmActiveStateActivated:
		return StatusAssociated, nil
	case nmActiveStateUnknown, nmActiveStateActivating:
		return StatusAssociating, nil
	}
	return StatusFailed, nil
}
