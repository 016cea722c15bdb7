package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"arcrtc/internal/core/domain"
)

// PrometheusCollector exposes stream and session metrics. The packet fast
// path never touches it; a periodic walker copies counters out of the
// stream manager.
type PrometheusCollector struct {
	sessionsActive prometheus.Gauge
	streamsActive  prometheus.Gauge

	packetsSent     *prometheus.GaugeVec
	packetsReceived *prometheus.GaugeVec
	packetsLost     *prometheus.GaugeVec
	replayRejected  *prometheus.GaugeVec
	authFailures    *prometheus.GaugeVec
	concealed       *prometheus.GaugeVec

	lossRate     *prometheus.GaugeVec
	jitterMS     *prometheus.GaugeVec
	rttMS        *prometheus.GaugeVec
	bandwidthBPS *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arcrtc_sessions_active",
			Help: "Number of live sessions",
		}),

		streamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arcrtc_streams_active",
			Help: "Number of live streams",
		}),

		packetsSent: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_packets_sent",
			Help: "Packets sent per stream",
		}, []string{"stream_id"}),

		packetsReceived: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_packets_received",
			Help: "Packets received per stream",
		}, []string{"stream_id"}),

		packetsLost: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_packets_lost",
			Help: "Packets lost per stream",
		}, []string{"stream_id"}),

		replayRejected: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_replay_rejected",
			Help: "Replayed packets rejected per stream",
		}, []string{"stream_id"}),

		authFailures: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_auth_failures",
			Help: "SRTP authentication failures per stream",
		}, []string{"stream_id"}),

		concealed: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_concealed",
			Help: "Frames synthesized by loss concealment per stream",
		}, []string{"stream_id"}),

		lossRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_loss_rate",
			Help: "Windowed loss rate per stream",
		}, []string{"stream_id"}),

		jitterMS: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_jitter_ms",
			Help: "Interarrival jitter per stream in milliseconds",
		}, []string{"stream_id"}),

		rttMS: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_rtt_ms",
			Help: "Round-trip time per stream in milliseconds",
		}, []string{"stream_id"}),

		bandwidthBPS: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcrtc_stream_bandwidth_bps",
			Help: "Estimated available bandwidth per stream in bits per second",
		}, []string{"stream_id"}),
	}
}

func (p *PrometheusCollector) RecordStreamCreated(streamID domain.StreamID, kind domain.MediaKind) {
	p.streamsActive.Inc()
}

func (p *PrometheusCollector) RecordStreamClosed(streamID domain.StreamID) {
	p.streamsActive.Dec()

	id := string(streamID)
	p.packetsSent.DeleteLabelValues(id)
	p.packetsReceived.DeleteLabelValues(id)
	p.packetsLost.DeleteLabelValues(id)
	p.replayRejected.DeleteLabelValues(id)
	p.authFailures.DeleteLabelValues(id)
	p.concealed.DeleteLabelValues(id)
	p.lossRate.DeleteLabelValues(id)
	p.jitterMS.DeleteLabelValues(id)
	p.rttMS.DeleteLabelValues(id)
	p.bandwidthBPS.DeleteLabelValues(id)
}

func (p *PrometheusCollector) RecordSessionOpened(sessionID domain.SessionID) {
	p.sessionsActive.Inc()
}

func (p *PrometheusCollector) RecordSessionClosed(sessionID domain.SessionID) {
	p.sessionsActive.Dec()
}

func (p *PrometheusCollector) UpdateStreamStats(stats domain.Stats) {
	id := string(stats.StreamID)
	p.packetsSent.WithLabelValues(id).Set(float64(stats.PacketsSent))
	p.packetsReceived.WithLabelValues(id).Set(float64(stats.PacketsReceived))
	p.packetsLost.WithLabelValues(id).Set(float64(stats.PacketsLost))
	p.replayRejected.WithLabelValues(id).Set(float64(stats.Replayed))
	p.authFailures.WithLabelValues(id).Set(float64(stats.AuthFailures))
	p.concealed.WithLabelValues(id).Set(float64(stats.Concealed))
	p.lossRate.WithLabelValues(id).Set(stats.Health.LossRate)
	p.jitterMS.WithLabelValues(id).Set(stats.Health.JitterMS)
	p.rttMS.WithLabelValues(id).Set(stats.Health.RTTMS)
	p.bandwidthBPS.WithLabelValues(id).Set(stats.Health.BandwidthBPS)
}

// StatsSource is anything that can snapshot per-stream counters.
type StatsSource interface {
	SnapshotStats() []domain.Stats
}

// Walk periodically snapshots stream stats into the collector until ctx is
// cancelled.
func (p *PrometheusCollector) Walk(ctx context.Context, source StatsSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stats := range source.SnapshotStats() {
				p.UpdateStreamStats(stats)
			}
		}
	}
}
