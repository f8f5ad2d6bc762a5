// Package features turns events into the fixed-length numeric vectors the
// anomaly model is trained and scored on.
package features

import (
	"math"
	"net/netip"
	"strings"

	"inidars/internal/model"
)

// Version identifies the feature layout. Models record the version they were
// trained with and refuse vectors of another layout.
const Version = "v1"

// Names lists the features in vector order.
var Names = []string{
	"source_port",
	"dest_port",
	"log_bytes",
	"log_packets",
	"protocol",
	"action",
	"source_ip_diversity",
	"dest_ip_diversity",
	"hour_of_day",
	"bytes_per_packet",
}

// Count is the length of every extracted vector.
var Count = len(Names)

var protocolCodes = map[string]float64{
	"tcp":   0.3,
	"udp":   0.6,
	"icmp":  0.9,
	"http":  0.2,
	"https": 0.25,
	"ssh":   0.4,
	"ftp":   0.5,
}

// Checked in order; the first substring found in the action wins.
var actionCodes = []struct {
	token string
	code  float64
}{
	{"allow", 0.1},
	{"deny", 0.9},
	{"drop", 0.95},
	{"reject", 0.85},
	{"accept", 0.2},
	{"fail", 0.8},
	{"success", 0.15},
}

const unknownCode = 0.5

// Extractor is stateless and safe for concurrent use.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract maps an event to a vector of Count values in [0,1]. The same event
// always yields the same vector.
func (x *Extractor) Extract(event *model.Event) []float64 {
	vec := make([]float64, 0, Count)

	vec = append(vec, clamp(float64(event.SourcePort)/65535))
	vec = append(vec, clamp(float64(event.DestPort)/65535))
	vec = append(vec, clamp(math.Log10(float64(max64(event.Bytes, 0))+1)/10))
	vec = append(vec, clamp(math.Log10(float64(max64(event.Packets, 0))+1)/5))
	vec = append(vec, protocolCode(event.Protocol))
	vec = append(vec, actionCode(event.Action))
	vec = append(vec, addressDiversity(event.SourceIP))
	vec = append(vec, addressDiversity(event.DestIP))

	if event.Timestamp.IsZero() {
		vec = append(vec, unknownCode)
	} else {
		vec = append(vec, float64(event.Timestamp.UTC().Hour())/24)
	}

	ratio := 0.0
	if event.Packets > 0 {
		ratio = float64(event.Bytes) / float64(event.Packets) / 1500
	}
	vec = append(vec, clamp(ratio))

	return vec
}

func protocolCode(protocol string) float64 {
	if code, ok := protocolCodes[strings.ToLower(protocol)]; ok {
		return code
	}
	return 0
}

func actionCode(action string) float64 {
	action = strings.ToLower(action)
	for _, ac := range actionCodes {
		if strings.Contains(action, ac.token) {
			return ac.code
		}
	}
	return unknownCode
}

// addressDiversity uses the last byte of the address as a cheap spread signal.
func addressDiversity(ip string) float64 {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return unknownCode
	}
	raw := addr.Unmap().AsSlice()
	return float64(raw[len(raw)-1]) / 255
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
