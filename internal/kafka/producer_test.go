package kafka

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

func TestWriteAggregates(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var m Message
		if err := json.Unmarshal(value, &m); err != nil {
			return err
		}
		if m.Region != "EH" || m.Year != 2019 || m.MeanConsumption == nil || *m.MeanConsumption != 10 {
			return errors.New("unexpected EH payload")
		}
		return nil
	})
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var m map[string]any
		if err := json.Unmarshal(value, &m); err != nil {
			return err
		}
		if v, ok := m["mean_consumption_kwh"]; !ok || v != nil {
			return errors.New("undefined mean should be null")
		}
		return nil
	})

	p := NewProducerWith("aggregates", mock, nil)
	err := p.WriteAggregates(context.Background(), []models.RegionYearAggregate{
		{Region: "EH", Year: 2019, SumConsumption: 40, MeterCount: 4, MeanConsumption: sql.NullFloat64{Float64: 10, Valid: true}},
		{Region: "ZE", Year: 2019, SumConsumption: 5},
	})
	if err != nil {
		t.Fatalf("WriteAggregates: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWriteAggregatesFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWith("aggregates", mock, nil)
	err := p.WriteAggregates(context.Background(), []models.RegionYearAggregate{{Region: "G", Year: 2020}})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("err = %v", err)
	}
	p.Close()
}

func TestNewMessageKeepsDataZone(t *testing.T) {
	m := NewMessage(models.RegionYearAggregate{Region: "S12000036", DataZone: "S01008677", Year: 2022})
	if m.DataZone != "S01008677" || m.MeanConsumption != nil {
		t.Errorf("message = %+v", m)
	}
}
