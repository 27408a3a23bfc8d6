// Package doctor runs environment health checks for the build and
// monitor workflow.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.bug.st/serial"

	"devdeck/internal/config"
)

// ToolStatus reports whether a required host tool is available.
type ToolStatus struct {
	Name      string
	Installed bool
	Version   string
	Path      string
}

// PortStatus reports the serial ports visible on the host and whether
// the profile's configured port is among them.
type PortStatus struct {
	Available  []string
	Configured string
	Present    bool
}

// ProfileStatus reports whether a device profile loads cleanly.
type ProfileStatus struct {
	Path  string
	Found bool
	Valid bool
	Error string
}

// Diagnosis contains the full health check results.
type Diagnosis struct {
	Toolchain ToolStatus
	Ports     PortStatus
	Profile   ProfileStatus
	Healthy   bool
	Issues    []string
}

// Stubbed in tests.
var (
	lookPath  = exec.LookPath
	listPorts = serial.GetPortsList
)

// Diagnose checks the toolchain, the serial ports and the profile at
// the given path.
func Diagnose(profilePath string) Diagnosis {
	d := Diagnosis{Healthy: true}

	d.Toolchain = checkArduinoCLI()
	if !d.Toolchain.Installed {
		d.Healthy = false
		d.Issues = append(d.Issues, "arduino-cli is not installed")
	}

	d.Profile = checkProfile(profilePath)
	switch {
	case !d.Profile.Found:
		d.Healthy = false
		d.Issues = append(d.Issues, fmt.Sprintf("no profile at %s (run `devdeck init`)", profilePath))
	case !d.Profile.Valid:
		d.Healthy = false
		d.Issues = append(d.Issues, "profile is invalid: "+d.Profile.Error)
	}

	d.Ports = checkPorts(profilePath, d.Profile)
	if d.Profile.Valid && !d.Ports.Present {
		d.Healthy = false
		d.Issues = append(d.Issues, fmt.Sprintf("configured port %s not found", d.Ports.Configured))
	}

	return d
}

// checkArduinoCLI locates arduino-cli and asks it for its version.
func checkArduinoCLI() ToolStatus {
	status := ToolStatus{Name: "arduino-cli"}

	path, err := lookPath("arduino-cli")
	if err != nil {
		return status
	}
	status.Installed = true
	status.Path = path

	out, err := exec.Command(path, "version").Output()
	if err == nil {
		status.Version = strings.TrimSpace(string(out))
	}
	return status
}

func checkProfile(path string) ProfileStatus {
	status := ProfileStatus{Path: path}
	if _, err := os.Stat(path); err != nil {
		return status
	}
	status.Found = true

	if _, err := config.Read(path); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Valid = true
	return status
}

func checkPorts(path string, profile ProfileStatus) PortStatus {
	status := PortStatus{}
	ports, err := listPorts()
	if err == nil {
		status.Available = ports
	}
	if !profile.Valid {
		return status
	}

	p, err := config.Read(path)
	if err != nil {
		return status
	}
	status.Configured = p.Port
	for _, port := range status.Available {
		if port == p.Port {
			status.Present = true
			break
		}
	}
	return status
}
