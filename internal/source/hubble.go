package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"inidars/internal/model"

	flowpb "github.com/cilium/cilium/api/v1/flow"
	"github.com/cilium/cilium/api/v1/observer"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type HubbleConfig struct {
	Server         string
	Namespaces     []string
	ReconnectDelay time.Duration
}

// HubbleSource streams flows from a Hubble relay and submits each one as an
// event.
type HubbleSource struct {
	cfg    HubbleConfig
	conn   *grpc.ClientConn
	sink   Submitter
	logger *logrus.Logger
}

func NewHubbleSource(cfg HubbleConfig, sink Submitter, logger *logrus.Logger) (*HubbleSource, error) {
	conn, err := grpc.NewClient(cfg.Server, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Hubble server: %w", err)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &HubbleSource{cfg: cfg, conn: conn, sink: sink, logger: logger}, nil
}

func (h *HubbleSource) Close() error {
	return h.conn.Close()
}

// Run streams until ctx is cancelled, reconnecting after stream errors.
func (h *HubbleSource) Run(ctx context.Context) {
	h.logger.Infof("Streaming flows from Hubble relay at %s", h.cfg.Server)
	if len(h.cfg.Namespaces) > 0 {
		h.logger.Infof("Filtering namespaces: %s", strings.Join(h.cfg.Namespaces, ", "))
	}

	for {
		err := h.stream(ctx)
		if ctx.Err() != nil {
			h.logger.Info("Stopped streaming flows")
			return
		}
		if err != nil {
			h.logger.Warnf("Hubble stream failed: %v, reconnecting in %s", err, h.cfg.ReconnectDelay)
		} else {
			h.logger.Infof("Hubble stream ended, reconnecting in %s", h.cfg.ReconnectDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(h.cfg.ReconnectDelay):
		}
	}
}

func (h *HubbleSource) stream(ctx context.Context) error {
	client := observer.NewObserverClient(h.conn)

	stream, err := client.GetFlows(ctx, flowsRequest(h.cfg.Namespaces))
	if err != nil {
		return fmt.Errorf("failed to start flow streaming: %w", err)
	}

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to receive flow: %w", err)
		}

		event, ok := convertFlow(response.GetFlow())
		if !ok {
			continue
		}
		submit(ctx, h.sink, event, OriginHubble, h.logger)
	}
}

func flowsRequest(namespaces []string) *observer.GetFlowsRequest {
	req := &observer.GetFlowsRequest{
		Follow: true,
	}

	var filters []*flowpb.FlowFilter
	for _, ns := range namespaces {
		filters = append(filters,
			&flowpb.FlowFilter{
				SourceLabel: []string{"k8s:io.kubernetes.pod.namespace=" + ns},
			},
			&flowpb.FlowFilter{
				DestinationLabel: []string{"k8s:io.kubernetes.pod.namespace=" + ns},
			},
		)
	}
	req.Whitelist = filters
	return req
}

// convertFlow maps a Hubble flow onto an event. Flows without an IP layer
// cannot be attributed to a source and are skipped.
func convertFlow(f *flowpb.Flow) (model.Event, bool) {
	if f == nil || f.GetIP() == nil || f.GetIP().GetSource() == "" || f.GetIP().GetDestination() == "" {
		return model.Event{}, false
	}

	event := model.Event{
		SourceIP:  f.GetIP().GetSource(),
		DestIP:    f.GetIP().GetDestination(),
		Protocol:  "ip",
		Action:    verdictAction(f.GetVerdict()),
		Packets:   1,
		EventType: "hubble_" + strings.ToLower(f.GetType().String()),
		Raw:       make(map[string]any),
	}
	if f.GetTime() != nil {
		event.Timestamp = f.GetTime().AsTime().UTC()
	}

	if l4 := f.GetL4(); l4 != nil {
		switch {
		case l4.GetTCP() != nil:
			tcp := l4.GetTCP()
			event.Protocol = "tcp"
			event.SourcePort = int(tcp.GetSourcePort())
			event.DestPort = int(tcp.GetDestinationPort())
			event.TCPFlags = tcpFlags(tcp.GetFlags())
		case l4.GetUDP() != nil:
			event.Protocol = "udp"
			event.SourcePort = int(l4.GetUDP().GetSourcePort())
			event.DestPort = int(l4.GetUDP().GetDestinationPort())
		case l4.GetICMPv4() != nil || l4.GetICMPv6() != nil:
			event.Protocol = "icmp"
		}
	}

	if l7 := f.GetL7(); l7 != nil {
		if http := l7.GetHttp(); http != nil {
			event.Protocol = "http"
			event.Payload = http.GetMethod() + " " + http.GetUrl()
			event.Raw["http_status"] = http.GetCode()
			if code := http.GetCode(); code == 401 || code == 403 {
				event.Action = "auth_failed"
			}
		}
		if dns := l7.GetDns(); dns != nil {
			event.Payload = dns.GetQuery()
		}
	}

	if src := f.GetSource(); src != nil {
		setIfNotEmpty(event.Raw, "source_namespace", src.GetNamespace())
		setIfNotEmpty(event.Raw, "source_pod", src.GetPodName())
	}
	if dst := f.GetDestination(); dst != nil {
		setIfNotEmpty(event.Raw, "dest_namespace", dst.GetNamespace())
		setIfNotEmpty(event.Raw, "dest_pod", dst.GetPodName())
	}
	setIfNotEmpty(event.Raw, "node_name", f.GetNodeName())
	if f.GetVerdict() == flowpb.Verdict_DROPPED {
		event.Raw["drop_reason"] = f.GetDropReasonDesc().String()
	}

	return event, true
}

func verdictAction(v flowpb.Verdict) string {
	switch v {
	case flowpb.Verdict_FORWARDED:
		return "allow"
	case flowpb.Verdict_DROPPED:
		return "drop"
	case flowpb.Verdict_ERROR:
		return "fail"
	case flowpb.Verdict_AUDIT:
		return "audit"
	default:
		return strings.ToLower(v.String())
	}
}

func tcpFlags(flags *flowpb.TCPFlags) string {
	if flags == nil {
		return ""
	}
	var set []string
	if flags.GetSYN() {
		set = append(set, "SYN")
	}
	if flags.GetACK() {
		set = append(set, "ACK")
	}
	if flags.GetFIN() {
		set = append(set, "FIN")
	}
	if flags.GetRST() {
		set = append(set, "RST")
	}
	if flags.GetPSH() {
		set = append(set, "PSH")
	}
	if flags.GetURG() {
		set = append(set, "URG")
	}
	return strings.Join(set, ",")
}

func setIfNotEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
