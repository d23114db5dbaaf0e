package sqlite

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type evidenceRepo struct{ tx *gorm.DB }

// CreatePacket inserts the packet and all of its items.
func (r evidenceRepo) CreatePacket(p domain.EvidencePacket) error {
	m := evidencePacketModel{
		ID:          p.ID,
		TenantID:    p.TenantID,
		Name:        p.Name,
		Description: p.Description,
		ArchiveURI:  p.ArchiveURI,
		SHA256:      p.SHA256,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt.UTC(),
	}
	if err := r.tx.Create(&m).Error; err != nil {
		return fmt.Errorf("create evidence packet: %w", err)
	}
	if len(p.Items) == 0 {
		return nil
	}
	items := make([]evidenceItemModel, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, evidenceItemModel{
			ID:          it.ID,
			TenantID:    it.TenantID,
			PacketID:    nullable(p.ID),
			ExceptionID: nullable(it.ExceptionID),
			Kind:        string(it.Kind),
			Title:       it.Title,
			URI:         it.URI,
			CreatedAt:   it.CreatedAt.UTC(),
		})
	}
	if err := r.tx.Create(&items).Error; err != nil {
		return fmt.Errorf("create evidence items: %w", err)
	}
	return nil
}

func (r evidenceRepo) GetPacket(tenantID, id string) (domain.EvidencePacket, error) {
	var m evidencePacketModel
	if err := r.tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error; err != nil {
		return domain.EvidencePacket{}, notFound(err, "Evidence packet not found")
	}
	var items []evidenceItemModel
	if err := r.tx.Where("packet_id = ?", id).Order("exception_id ASC").Find(&items).Error; err != nil {
		return domain.EvidencePacket{}, fmt.Errorf("load evidence items: %w", err)
	}
	p := toPacket(m)
	for _, it := range items {
		item, err := toItem(it)
		if err != nil {
			return domain.EvidencePacket{}, err
		}
		p.Items = append(p.Items, item)
	}
	return p, nil
}

func (r evidenceRepo) ListPackets(tenantID string, limit int) ([]domain.EvidencePacket, error) {
	var rows []evidencePacketModel
	q := r.tx.Where("tenant_id = ?", tenantID).Order("created_at DESC").Order("rowid DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list evidence packets: %w", err)
	}
	out := make([]domain.EvidencePacket, 0, len(rows))
	for _, m := range rows {
		out = append(out, toPacket(m))
	}
	return out, nil
}

func toPacket(m evidencePacketModel) domain.EvidencePacket {
	return domain.EvidencePacket{
		ID:          m.ID,
		TenantID:    m.TenantID,
		Name:        m.Name,
		Description: m.Description,
		ArchiveURI:  m.ArchiveURI,
		SHA256:      m.SHA256,
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
	}
}

func toItem(m evidenceItemModel) (domain.EvidenceItem, error) {
	kind, err := domain.ParseEvidenceKind(m.Kind)
	if err != nil {
		return domain.EvidenceItem{}, fmt.Errorf("load evidence item %s: %w", m.ID, err)
	}
	return domain.EvidenceItem{
		ID:          m.ID,
		TenantID:    m.TenantID,
		PacketID:    deref(m.PacketID),
		ExceptionID: deref(m.ExceptionID),
		Kind:        kind,
		Title:       m.Title,
		URI:         m.URI,
		CreatedAt:   m.CreatedAt,
	}, nil
}
