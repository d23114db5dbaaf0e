package usecase

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
	"github.com/atvirokodosprendimai/precheck/internal/telemetry"
)

const packetEntryName = "packet.json"

type PacketRequest struct {
	Name         string
	Description  string
	ExceptionIDs []string
}

// EvidenceService builds and verifies evidence archives.
type EvidenceService struct {
	store     ports.Store
	artifacts ports.ArtifactStore
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewEvidenceService(store ports.Store, artifacts ports.ArtifactStore, metrics *telemetry.Metrics, logger *slog.Logger) *EvidenceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvidenceService{
		store:     store,
		artifacts: artifacts,
		metrics:   metrics,
		logger:    logger.With("component", "evidence"),
		now:       time.Now,
	}
}

// Build writes the archive, the packet row, one item per exception and the
// audit entry. Database writes share one transaction; the archive is removed
// again if that transaction fails.
func (s *EvidenceService) Build(ctx context.Context, tenantID string, actor domain.Actor, req PacketRequest) (domain.EvidencePacket, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.EvidencePacket{}, domain.Invalid("packet name is required")
	}
	// Every requested id must resolve; a repeated id counts as unresolved.
	ids := slices.Clone(req.ExceptionIDs)
	slices.Sort(ids)

	generatedAt := s.now().UTC().Truncate(time.Second)
	packet := domain.EvidencePacket{
		ID:          domain.NewID(),
		TenantID:    tenantID,
		Name:        name,
		Description: req.Description,
		CreatedBy:   actor.Label(),
		CreatedAt:   generatedAt,
	}

	var uri string
	err := s.store.Write(ctx, func(tx ports.Tx) error {
		exceptions, err := tx.Exceptions().GetMany(tenantID, ids)
		if err != nil {
			return err
		}
		if len(exceptions) != len(ids) {
			return domain.NotFound("One or more exceptions not found")
		}

		archive, err := buildArchive(packetSummary(name, req.Description, generatedAt, exceptions), generatedAt)
		if err != nil {
			return err
		}
		digest := sha256.Sum256(archive)
		packet.SHA256 = hex.EncodeToString(digest[:])

		key := fmt.Sprintf("%s/%s/packet-%s-%s.zip", tenantID, packet.ID, tenantID, generatedAt.Format("20060102T150405Z"))
		uri, err = s.artifacts.Put(ctx, key, archive)
		if err != nil {
			return fmt.Errorf("store evidence archive: %w", err)
		}
		packet.ArchiveURI = uri

		for _, e := range exceptions {
			packet.Items = append(packet.Items, domain.EvidenceItem{
				ID:          domain.NewID(),
				TenantID:    tenantID,
				PacketID:    packet.ID,
				ExceptionID: e.ID,
				Kind:        domain.EvidenceExport,
				Title:       "Exception " + e.ID,
				URI:         uri + "#exception-" + e.ID,
				CreatedAt:   generatedAt,
			})
		}
		if err := tx.Evidence().CreatePacket(packet); err != nil {
			return err
		}
		if ids == nil {
			ids = []string{}
		}
		return appendAudit(tx, tenantID, actor, domain.ActionEvidencePacketCreate, "EvidencePacket", packet.ID,
			map[string]any{"exceptions": ids, "sha256": packet.SHA256}, generatedAt)
	})
	if err != nil {
		if uri != "" {
			if delErr := s.artifacts.Delete(context.WithoutCancel(ctx), uri); delErr != nil {
				s.logger.Warn("remove orphaned evidence archive", "uri", uri, "error", delErr)
			}
		}
		return domain.EvidencePacket{}, err
	}

	s.metrics.RecordPacket()
	return packet, nil
}

func (s *EvidenceService) Get(ctx context.Context, tenantID, id string) (domain.EvidencePacket, error) {
	var p domain.EvidencePacket
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		p, err = tx.Evidence().GetPacket(tenantID, id)
		return err
	})
	return p, err
}

func (s *EvidenceService) List(ctx context.Context, tenantID string, limit int) ([]domain.EvidencePacket, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var out []domain.EvidencePacket
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		out, err = tx.Evidence().ListPackets(tenantID, limit)
		return err
	})
	return out, err
}

// Verify recomputes the archive digest and compares it with the stored one.
func (s *EvidenceService) Verify(ctx context.Context, tenantID, id string) (domain.PacketVerification, error) {
	p, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return domain.PacketVerification{}, err
	}
	data, err := s.artifacts.Get(ctx, p.ArchiveURI)
	if err != nil {
		return domain.PacketVerification{}, fmt.Errorf("load evidence archive: %w", err)
	}
	digest := sha256.Sum256(data)
	computed := hex.EncodeToString(digest[:])
	return domain.PacketVerification{
		PacketID: p.ID,
		Stored:   p.SHA256,
		Computed: computed,
		Match:    computed == p.SHA256,
	}, nil
}

// Summary reopens the stored archive and decodes its packet document.
func (s *EvidenceService) Summary(ctx context.Context, tenantID, id string) (domain.PacketSummary, error) {
	p, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return domain.PacketSummary{}, err
	}
	data, err := s.artifacts.Get(ctx, p.ArchiveURI)
	if err != nil {
		return domain.PacketSummary{}, fmt.Errorf("load evidence archive: %w", err)
	}
	return ReadArchive(data)
}

// ReadArchive decodes the summary stored in an evidence archive.
func ReadArchive(data []byte) (domain.PacketSummary, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.PacketSummary{}, fmt.Errorf("open evidence archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != packetEntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return domain.PacketSummary{}, fmt.Errorf("open %s: %w", packetEntryName, err)
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		if err != nil {
			return domain.PacketSummary{}, fmt.Errorf("read %s: %w", packetEntryName, err)
		}
		var summary domain.PacketSummary
		if err := json.Unmarshal(raw, &summary); err != nil {
			return domain.PacketSummary{}, fmt.Errorf("decode %s: %w", packetEntryName, err)
		}
		return summary, nil
	}
	return domain.PacketSummary{}, fmt.Errorf("evidence archive has no %s", packetEntryName)
}

func packetSummary(name, description string, generatedAt time.Time, exceptions []domain.ExceptionRecord) domain.PacketSummary {
	sorted := slices.Clone(exceptions)
	slices.SortFunc(sorted, func(a, b domain.ExceptionRecord) int { return strings.Compare(a.ID, b.ID) })

	summary := domain.PacketSummary{
		Name:        norm.NFC.String(name),
		Description: norm.NFC.String(description),
		GeneratedAt: generatedAt.Format(time.RFC3339),
		Exceptions:  make([]domain.PacketException, 0, len(sorted)),
	}
	for _, e := range sorted {
		var due *string
		if e.DueDate != nil {
			d := e.DueDate.UTC().Format(time.RFC3339)
			due = &d
		}
		summary.Exceptions = append(summary.Exceptions, domain.PacketException{
			ID:           e.ID,
			RuleResultID: e.RuleResultID,
			Status:       string(e.Status),
			Rationale:    norm.NFC.String(e.Rationale),
			DueDate:      due,
		})
	}
	return summary
}

// buildArchive writes a single-entry zip. The entry timestamp is the packet
// generation time so identical inputs yield identical bytes.
func buildArchive(summary domain.PacketSummary, generatedAt time.Time) ([]byte, error) {
	doc, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal packet summary: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     packetEntryName,
		Method:   zip.Deflate,
		Modified: generatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive entry: %w", err)
	}
	if _, err := w.Write(doc); err != nil {
		return nil, fmt.Errorf("write archive entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
