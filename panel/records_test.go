package panel

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordUnixTimestamp(t *testing.T) {
	raw := []byte(`{"entity_id":"0xabc","category":"pfp","timestamp":1672531200,"price":"1.5","buyer":"b1","seller":"s1"}`)
	rec, err := ParseRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", rec.EntityID)
	assert.Equal(t, Category("pfp"), rec.Category)
	assert.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), rec.Timestamp)
	assert.True(t, rec.Price.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "b1", rec.Buyer)
	assert.Equal(t, "s1", rec.Seller)
}

func TestParseRecordRFC3339AndCollectionAlias(t *testing.T) {
	raw := []byte(`{"collection":"0xdef","timestamp":"2023-06-15T12:00:00Z","price":2.25}`)
	rec, err := ParseRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "0xdef", rec.EntityID)
	assert.Equal(t, time.June, rec.Timestamp.Month())
	assert.True(t, rec.Price.Equal(decimal.RequireFromString("2.25")))
}

func TestParseRecordRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing entity":    `{"timestamp":1672531200,"price":"1"}`,
		"missing timestamp": `{"entity_id":"0xabc","price":"1"}`,
		"bad timestamp":     `{"entity_id":"0xabc","timestamp":"yesterday","price":"1"}`,
		"missing price":     `{"entity_id":"0xabc","timestamp":1672531200}`,
		"bad price":         `{"entity_id":"0xabc","timestamp":1672531200,"price":"cheap"}`,
	}
	for name, raw := range cases {
		_, err := ParseRecord([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestAggregateRecords(t *testing.T) {
	ts := time.Date(2023, time.March, 10, 0, 0, 0, 0, time.UTC)
	mk := func(price string, buyer, seller string) TxRecord {
		return TxRecord{
			EntityID:  "0xabc",
			Category:  "art",
			Timestamp: ts,
			Price:     decimal.RequireFromString(price),
			Buyer:     buyer,
			Seller:    seller,
		}
	}
	recs := []TxRecord{
		mk("1.0", "b1", "s1"),
		mk("2.0", "b2", "s1"),
		mk("3.0", "b1", "s2"),
		mk("10.0", "b3", "s3"),
	}
	// 另一个period, 不应与上面混桶
	recs = append(recs, TxRecord{
		EntityID: "0xabc", Category: "art",
		Timestamp: ts.AddDate(0, 1, 0),
		Price:     decimal.RequireFromString("5.0"),
	})

	aggs := AggregateRecords(recs)
	require.Len(t, aggs, 2)

	a := aggs[0]
	assert.Equal(t, Period{Year: 2023, Month: time.March}, a.Period)
	assert.Equal(t, 4, a.TxCount)
	assert.InDelta(t, 4.0, a.PriceMean, 1e-12)
	assert.InDelta(t, 2.5, a.PriceMedian, 1e-12)
	assert.True(t, a.PriceStd > 0)
	assert.Equal(t, 3, a.UniqueBuyers)
	assert.Equal(t, 3, a.UniqueSellers)

	b := aggs[1]
	assert.Equal(t, Period{Year: 2023, Month: time.April}, b.Period)
	assert.Equal(t, 1, b.TxCount)
	assert.InDelta(t, 5.0, b.PriceMean, 1e-12)
	assert.Zero(t, b.PriceStd)
}

func TestAggregateRecordsDeterministicOrder(t *testing.T) {
	ts := time.Date(2023, time.March, 10, 0, 0, 0, 0, time.UTC)
	recs := []TxRecord{
		{EntityID: "0xbbb", Category: "pfp", Timestamp: ts, Price: decimal.NewFromInt(1)},
		{EntityID: "0xaaa", Category: "pfp", Timestamp: ts.AddDate(0, 1, 0), Price: decimal.NewFromInt(1)},
		{EntityID: "0xaaa", Category: "pfp", Timestamp: ts, Price: decimal.NewFromInt(1)},
	}
	aggs := AggregateRecords(recs)
	require.Len(t, aggs, 3)
	assert.Equal(t, "0xaaa", aggs[0].EntityID)
	assert.Equal(t, Period{Year: 2023, Month: time.March}, aggs[0].Period)
	assert.Equal(t, Period{Year: 2023, Month: time.April}, aggs[1].Period)
	assert.Equal(t, "0xbbb", aggs[2].EntityID)
}
