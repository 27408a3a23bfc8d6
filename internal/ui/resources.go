package ui

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceStats holds system resource information shown in the header.
type ResourceStats struct {
	CPUPercent  float64
	MemoryUsed  uint64
	MemoryTotal uint64
	MemPercent  float64
	CPUTemp     float64 // in Celsius, -1 if unavailable
}

// GetResourceStats fetches current system resource statistics
func GetResourceStats() ResourceStats {
	stats := ResourceStats{CPUTemp: -1}

	cpuPercent, err := cpu.Percent(0, false)
	if err == nil && len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err == nil {
		stats.MemoryUsed = memInfo.Used
		stats.MemoryTotal = memInfo.Total
		stats.MemPercent = memInfo.UsedPercent
	}

	stats.CPUTemp = getCPUTemperature()

	return stats
}

// getCPUTemperature attempts to get CPU temperature. Sensor naming is
// platform-specific, so this is best effort.
func getCPUTemperature() float64 {
	temps, err := host.SensorsTemperatures()
	if err != nil {
		return -1
	}

	for _, temp := range temps {
		lower := strings.ToLower(temp.SensorKey)
		if strings.Contains(lower, "cpu") ||
			strings.Contains(lower, "coretemp") ||
			strings.Contains(lower, "k10temp") {
			if temp.Temperature > 0 {
				return temp.Temperature
			}
		}
	}

	for _, temp := range temps {
		if temp.Temperature > 0 && temp.Temperature < 120 {
			return temp.Temperature
		}
	}

	return -1
}

// FormatBytes formats bytes into a human-readable string
func FormatBytes(bytes uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
