package logic

import (
	"context"
	"errors"
	"testing"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/model"
	"github.com/blues/fundchain/internal/repository"
)

type fakeEventStore struct {
	last repository.EventQuery
	rows []model.EventModel
	err  error
}

func (f *fakeEventStore) List(ctx context.Context, q repository.EventQuery) ([]model.EventModel, int64, error) {
	f.last = q
	return f.rows, int64(len(f.rows)), f.err
}

func TestEventLogic_GetEvents(t *testing.T) {
	store := &fakeEventStore{rows: []model.EventModel{
		{EventType: "DonationMade", CampaignId: 3, TxHash: "0xabc", LogIndex: 1, BlockNum: 42,
			Data: `{"donor":"0x00000000000000000000000000000000000000d1","amount":"1000"}`},
		{EventType: "CampaignFinalized", CampaignId: 3, Data: "not json"},
	}}
	l := NewEventLogic(store)

	records, total, err := l.GetEvents(context.Background(), 3, "", 0, 500)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("total = %d, records = %d", total, len(records))
	}
	if records[0].Fields["amount"] != "1000" || records[0].BlockNumber != 42 {
		t.Errorf("record 0 = %+v", records[0])
	}
	if len(records[1].Fields) != 0 {
		t.Errorf("malformed data should yield empty fields, got %v", records[1].Fields)
	}
	if store.last.Page != 1 || store.last.PageSize != maxEventPageSize || store.last.CampaignId != 3 {
		t.Errorf("query = %+v", store.last)
	}
}

func TestEventLogic_Errors(t *testing.T) {
	tests := []struct {
		name  string
		logic *EventLogic
		event string
		kind  apperr.Kind
	}{
		{"disabled", NewEventLogic(nil), "", apperr.KindNotFound},
		{"unknown event", NewEventLogic(&fakeEventStore{}), "Transfer", apperr.KindValidation},
		{"store failure", NewEventLogic(&fakeEventStore{err: errors.New("db down")}), "DonationMade", apperr.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.logic.GetEvents(context.Background(), -1, tt.event, 1, 10)
			if !apperr.Is(err, tt.kind) {
				t.Errorf("err = %v, want kind %s", err, tt.kind)
			}
		})
	}
}
