package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

const unknownDevice = "POS-UNKNOWN"

// DeviceID hashes the first active MAC address into a short terminal id
// like "POS-A1B2C3D4". Sales do not depend on it; it only labels the device.
func DeviceID() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return unknownDevice
	}
	return deviceIDFrom(interfaces)
}

func deviceIDFrom(interfaces []net.Interface) string {
	var macAddress string
	for _, i := range interfaces {
		if i.Flags&net.FlagUp != 0 && i.Flags&net.FlagLoopback == 0 && len(i.HardwareAddr) > 0 {
			macAddress = i.HardwareAddr.String()
			break
		}
	}
	if macAddress == "" {
		return unknownDevice
	}

	hash := sha256.Sum256([]byte(macAddress + "POS-SYNC-DEVICE"))
	return "POS-" + strings.ToUpper(hex.EncodeToString(hash[:])[:8])
}
