package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/vad-segmenter/internal/config"
	"github.com/skypro1111/vad-segmenter/internal/metrics"
	"github.com/skypro1111/vad-segmenter/internal/protocol"
	"github.com/skypro1111/vad-segmenter/internal/stream"
)

// UDPServer handles incoming TLV packets
type UDPServer struct {
	conn      *net.UDPConn
	config    *config.ServerConfig
	logger    *slog.Logger
	streamMgr *stream.Manager
	metrics   *metrics.Metrics

	// Concurrency management
	ctx       context.Context
	cancel    context.CancelFunc
	receiveWG sync.WaitGroup
	workerWG  sync.WaitGroup
	stopOnce  sync.Once

	// One queue per worker; a stream always lands on the same worker
	queues []chan *incomingPacket

	packetsReceived  atomic.Uint64
	packetsProcessed atomic.Uint64
	packetsDropped   atomic.Uint64
	parseErrors      atomic.Uint64
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	header     *protocol.Header
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, streamMgr *stream.Manager, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}

	queues := make([]chan *incomingPacket, workers)
	for i := range queues {
		queues[i] = make(chan *incomingPacket, queueSize)
	}

	return &UDPServer{
		config:    cfg,
		logger:    logger,
		streamMgr: streamMgr,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		queues:    queues,
	}
}

// Start begins listening for UDP packets
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
		slog.Int("workers", len(s.queues)),
	)

	for i := range s.queues {
		s.workerWG.Add(1)
		go s.packetProcessor(i)
	}

	s.receiveWG.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server. Packets already queued are processed
// before it returns. Calling Stop more than once is safe.
func (s *UDPServer) Stop() error {
	s.stopOnce.Do(s.shutdown)
	return nil
}

func (s *UDPServer) shutdown() {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	// Closing the connection unblocks the receive loop
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// The receive loop is the only sender, so queues close after it exits
	s.receiveWG.Wait()
	for _, q := range s.queues {
		close(q)
	}
	s.workerWG.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("packets_dropped", stats.PacketsDropped),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)
}

// receiveLoop is the main packet receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.receiveWG.Done()

	buffer := make([]byte, s.config.BufferSize)

	for {
		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
			continue
		}

		s.packetsReceived.Add(1)
		s.metrics.RecordPacketReceived()

		// Only the header is needed to pick a worker
		header, err := protocol.ParseHeader(buffer[:n])
		if err != nil {
			s.recordParseError(remoteAddr, n, err)
			continue
		}

		// Copy out of the reused receive buffer
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			header:     header,
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		worker := int(header.StreamID % uint32(len(s.queues)))
		select {
		case s.queues[worker] <- packet:
			s.metrics.SetQueueSize(s.queueLen())
		default:
			s.packetsDropped.Add(1)
			s.metrics.RecordPacketDropped()
			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Uint64("stream_id", uint64(header.StreamID)),
				slog.Int("worker_id", worker),
				slog.Int("packet_size", n),
			)
		}
	}
}

func (s *UDPServer) recordParseError(remoteAddr *net.UDPAddr, size int, err error) {
	s.parseErrors.Add(1)
	s.metrics.RecordParseError()

	s.logger.Error("Failed to parse packet",
		slog.String("remote_addr", remoteAddr.String()),
		slog.Int("packet_size", size),
		slog.String("error", err.Error()),
	)
}

// packetProcessor drains one worker queue
func (s *UDPServer) packetProcessor(workerID int) {
	defer s.workerWG.Done()

	s.logger.Debug("Packet processor started", slog.Int("worker_id", workerID))

	for packet := range s.queues[workerID] {
		s.handlePacket(packet, workerID)
	}

	s.logger.Debug("Packet processor stopped", slog.Int("worker_id", workerID))
}

// handlePacket processes a single incoming packet
func (s *UDPServer) handlePacket(packet *incomingPacket, workerID int) {
	parsedPacket, err := protocol.ParsePacket(packet.data)
	if err != nil {
		s.recordParseError(packet.remoteAddr, len(packet.data), err)
		return
	}

	s.packetsProcessed.Add(1)
	s.metrics.RecordPacketProcessed()

	switch parsedPacket.Header.PacketType {
	case protocol.PacketTypeOpen:
		s.processOpenPacket(parsedPacket.Header, parsedPacket.Open, workerID)
	case protocol.PacketTypeAudio:
		s.processAudioPacket(parsedPacket.Header, parsedPacket.Audio, workerID)
	case protocol.PacketTypeClose:
		s.processClosePacket(parsedPacket.Header, workerID)
	}
}

// processOpenPacket creates the stream session
func (s *UDPServer) processOpenPacket(header *protocol.Header, payload *protocol.OpenPayload, workerID int) {
	session, err := s.streamMgr.CreateSession(header.StreamID, payload.GetLabel(), int(payload.SampleRate))
	if err != nil {
		s.logger.Error("Failed to create stream session",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.logger.Debug("Open packet processed",
		slog.Uint64("stream_id", uint64(header.StreamID)),
		slog.String("label", session.Label),
		slog.Int("sample_rate", session.SampleRate),
		slog.Int("worker_id", workerID),
	)
}

// processAudioPacket feeds audio to the stream's engine
func (s *UDPServer) processAudioPacket(header *protocol.Header, payload *protocol.AudioPayload, workerID int) {
	session, exists := s.streamMgr.GetSession(header.StreamID)
	if !exists {
		s.logger.Warn("Received audio packet for unknown stream",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("sequence", uint64(payload.Sequence)),
			slog.Int("audio_size", len(payload.AudioData)),
			slog.Int("worker_id", workerID),
		)
		return
	}

	if err := session.AddAudio(payload.Sequence, payload.AudioData); err != nil {
		level := slog.LevelError
		if errors.Is(err, stream.ErrStalePacket) {
			level = slog.LevelDebug
		}
		s.logger.Log(s.ctx, level, "Failed to add audio to session",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("sequence", uint64(payload.Sequence)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
	}
}

// processClosePacket removes the stream, discarding an unfinished utterance
func (s *UDPServer) processClosePacket(header *protocol.Header, workerID int) {
	if !s.streamMgr.RemoveSession(header.StreamID) {
		s.logger.Warn("Close for unknown stream",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Int("worker_id", workerID),
		)
	}
}

func (s *UDPServer) queueLen() int {
	total := 0
	for _, q := range s.queues {
		total += len(q)
	}
	return total
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	return ServerStatistics{
		PacketsReceived:  s.packetsReceived.Load(),
		PacketsProcessed: s.packetsProcessed.Load(),
		PacketsDropped:   s.packetsDropped.Load(),
		ParseErrors:      s.parseErrors.Load(),
		ActiveStreams:    uint64(s.streamMgr.GetActiveSessionCount()),
		QueueSize:        uint64(s.queueLen()),
		QueueCapacity:    uint64(len(s.queues) * cap(s.queues[0])),
		Workers:          len(s.queues),
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	ParseErrors      uint64 `json:"parse_errors"`
	ActiveStreams    uint64 `json:"active_streams"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
	Workers          int    `json:"workers"`
}
