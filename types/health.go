package types

type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "UP"
	HealthStatusDown     HealthStatus = "DOWN"
	HealthStatusDegraded HealthStatus = "DEGRADED"
)

// HealthComponent is the state of one dependency. LatencyMs is the probe
// round trip and is omitted for checks that make no call.
type HealthComponent struct {
	Status    HealthStatus `json:"status"`
	Details   string       `json:"details,omitempty"`
	LatencyMs int64        `json:"latencyMs,omitempty"`
}

type HealthCheck struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]HealthComponent `json:"components,omitempty"`
	Version    string                     `json:"version"`
	Timestamp  string                     `json:"timestamp"`
	Uptime     string                     `json:"uptime"`
}

// OverallStatus is the worst status among components: any DOWN wins, then
// any DEGRADED.
func OverallStatus(components map[string]HealthComponent) HealthStatus {
	status := HealthStatusUp
	for _, c := range components {
		switch c.Status {
		case HealthStatusDown:
			return HealthStatusDown
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// Ready reports whether the service should take traffic. Degraded still
// serves; charges and webhooks must keep flowing under load.
func (h HealthCheck) Ready() bool {
	return h.Status != HealthStatusDown
}
