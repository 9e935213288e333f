package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ethpool/integrations/eventlog"
)

// EventSource serves the indexed event history.
type EventSource interface {
	List(ctx context.Context, q eventlog.Query) ([]eventlog.Record, error)
}

// SetEventSource enables pool_getEvents.
func (s *Server) SetEventSource(src EventSource) {
	s.events = src
}

// EventFilter is the optional parameter object of pool_getEvents.
type EventFilter struct {
	Type    string  `json:"type,omitempty"`
	Account string  `json:"account,omitempty"`
	Epoch   *uint64 `json:"epoch,omitempty"`
	After   uint64  `json:"after,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

// EventResult is one indexed event.
type EventResult struct {
	Sequence   uint64            `json:"sequence"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

func (s *Server) getEvents(c *call) (interface{}, error) {
	if s.events == nil {
		return nil, &failure{status: http.StatusNotFound, err: &RPCError{Code: codeMethodNotFound, Message: "event log not configured"}}
	}
	var filter EventFilter
	if c.has(0) {
		decoder := json.NewDecoder(bytes.NewReader(c.req.Params[0]))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&filter); err != nil {
			return nil, invalidParams("invalid event filter", err.Error())
		}
	}
	if filter.Limit < 0 || filter.Limit > eventlog.MaxPage {
		return nil, invalidParams("limit out of range", filter.Limit)
	}
	query := eventlog.Query{
		Type:          strings.TrimSpace(filter.Type),
		Epoch:         filter.Epoch,
		AfterSequence: filter.After,
		Limit:         filter.Limit,
	}
	if account := strings.TrimSpace(filter.Account); account != "" {
		if !common.IsHexAddress(account) {
			return nil, invalidParams("invalid account", account)
		}
		query.Account = common.HexToAddress(account).Hex()
	}
	records, err := s.events.List(c.ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]EventResult, 0, len(records))
	for _, record := range records {
		evt, err := record.Decoded()
		if err != nil {
			return nil, err
		}
		out = append(out, EventResult{
			Sequence:   record.Sequence,
			ID:         record.ID.String(),
			Type:       evt.Type,
			Attributes: evt.Attributes,
			RecordedAt: record.CreatedAt,
		})
	}
	return out, nil
}
