package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const (
	appID        = "robotalks.guard"
	deviceIDSize = 12
)

// MachineID derives a stable device ID from the machine ID. The raw
// machine ID is never exposed, falls back to the hostname.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("machine id: %v", err)
		host, herr := os.Hostname()
		if herr != nil {
			return "guard"
		}
		return host
	}
	if len(id) > deviceIDSize {
		id = id[:deviceIDSize]
	}
	return id
}
