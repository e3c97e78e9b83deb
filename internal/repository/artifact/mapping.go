package artifact

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/vmihailenco/msgpack/v5"
)

// DecodeStats: сколько записей артефакта отброшено как некорректные.
type DecodeStats struct {
	Total   int
	Dropped int
}

// jsonMapping: запись маппинга в JSON: {"<embedding id>": {"product_id": ..., "image_idx": n}}.
type jsonMapping struct {
	ProductID json.RawMessage `json:"product_id"`
	ImageIdx  *int            `json:"image_idx"`
}

// msgpackMapping: запись маппинга в msgpack: массив объектов.
type msgpackMapping struct {
	EmbeddingID int64  `msgpack:"embedding_id"`
	ProductID   string `msgpack:"product_id"`
	ImageSlot   int    `msgpack:"image_slot"`
}

// DecodeMappings разбирает артефакт маппинга; формат определяется по расширению ключа.
// Некорректные записи отбрасываются и учитываются в DecodeStats, битый документ: ошибка.
func DecodeMappings(key string, data []byte) ([]domain.EmbeddingMapping, DecodeStats, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".msgpack", ".mpk":
		return decodeMsgpackMappings(data)
	default:
		return decodeJSONMappings(data)
	}
}

// EncodeMappingsMsgpack сериализует маппинг в msgpack по возрастанию EmbeddingID.
func EncodeMappingsMsgpack(mappings []domain.EmbeddingMapping) ([]byte, error) {
	records := make([]msgpackMapping, len(mappings))
	for i, m := range mappings {
		records[i] = msgpackMapping{
			EmbeddingID: int64(m.EmbeddingID),
			ProductID:   string(m.ProductID),
			ImageSlot:   int(m.ImageSlot),
		}
	}
	slices.SortFunc(records, func(a, b msgpackMapping) int {
		return cmp.Compare(a.EmbeddingID, b.EmbeddingID)
	})

	return msgpack.Marshal(records)
}

func decodeJSONMappings(data []byte) ([]domain.EmbeddingMapping, DecodeStats, error) {
	var raw map[string]jsonMapping
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, DecodeStats{}, e.Wrap(fmt.Sprintf("mapping json: %v", err), e.ErrMalformedArtifact)
	}

	stats := DecodeStats{Total: len(raw)}
	out := make([]domain.EmbeddingMapping, 0, len(raw))
	for key, rec := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id < 0 {
			stats.Dropped++
			continue
		}

		productID, ok := rawProductID(rec.ProductID)
		if !ok || rec.ImageIdx == nil || *rec.ImageIdx < 0 {
			stats.Dropped++
			continue
		}

		out = append(out, domain.EmbeddingMapping{
			EmbeddingID: domain.EmbeddingID(id),
			ProductID:   productID,
			ImageSlot:   domain.ImageSlot(*rec.ImageIdx),
		})
	}

	sortMappings(out)
	return out, stats, nil
}

func decodeMsgpackMappings(data []byte) ([]domain.EmbeddingMapping, DecodeStats, error) {
	var records []msgpackMapping
	if err := msgpack.Unmarshal(data, &records); err != nil {
		return nil, DecodeStats{}, e.Wrap(fmt.Sprintf("mapping msgpack: %v", err), e.ErrMalformedArtifact)
	}

	stats := DecodeStats{Total: len(records)}
	out := make([]domain.EmbeddingMapping, 0, len(records))
	for _, rec := range records {
		if rec.EmbeddingID < 0 || rec.ImageSlot < 0 || strings.TrimSpace(rec.ProductID) == "" {
			stats.Dropped++
			continue
		}
		out = append(out, domain.EmbeddingMapping{
			EmbeddingID: domain.EmbeddingID(rec.EmbeddingID),
			ProductID:   domain.ProductID(rec.ProductID),
			ImageSlot:   domain.ImageSlot(rec.ImageSlot),
		})
	}

	sortMappings(out)
	return out, stats, nil
}

// rawProductID принимает product_id строкой или целым числом.
func rawProductID(raw json.RawMessage) (domain.ProductID, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
			return "", false
		}
		return domain.ProductID(s), true
	}

	if _, err := strconv.ParseInt(string(raw), 10, 64); err != nil {
		return "", false
	}
	return domain.ProductID(raw), true
}

func sortMappings(m []domain.EmbeddingMapping) {
	slices.SortFunc(m, func(a, b domain.EmbeddingMapping) int {
		return cmp.Compare(a.EmbeddingID, b.EmbeddingID)
	})
}
