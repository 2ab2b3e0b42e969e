package panel

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"gonum.org/v1/gonum/stat"
)

// TxRecord 采集层交出的单笔交易事件
type TxRecord struct {
	EntityID  string
	Category  Category
	Timestamp time.Time
	Price     decimal.Decimal // 原生币种价格, 精确累加
	Buyer     string
	Seller    string
}

// ParseRecord 宽松解析原始交易事件JSON。
// 必填: entity_id(或collection), timestamp(unix秒或RFC3339), price。
func ParseRecord(raw []byte) (TxRecord, error) {
	root := gjson.ParseBytes(raw)

	entity := root.Get("entity_id").String()
	if entity == "" {
		entity = root.Get("collection").String()
	}
	if entity == "" {
		return TxRecord{}, fmt.Errorf("panel: record missing entity_id")
	}

	tsField := root.Get("timestamp")
	var ts time.Time
	switch {
	case !tsField.Exists():
		return TxRecord{}, fmt.Errorf("panel: record missing timestamp (entity=%s)", entity)
	case tsField.Type == gjson.Number:
		ts = time.Unix(tsField.Int(), 0).UTC()
	default:
		parsed, err := time.Parse(time.RFC3339, tsField.String())
		if err != nil {
			return TxRecord{}, fmt.Errorf("panel: bad timestamp %q (entity=%s): %w", tsField.String(), entity, err)
		}
		ts = parsed.UTC()
	}

	priceField := root.Get("price")
	if !priceField.Exists() {
		return TxRecord{}, fmt.Errorf("panel: record missing price (entity=%s)", entity)
	}
	price, err := decimal.NewFromString(priceField.String())
	if err != nil {
		return TxRecord{}, fmt.Errorf("panel: bad price %q (entity=%s): %w", priceField.String(), entity, err)
	}

	return TxRecord{
		EntityID:  entity,
		Category:  Category(root.Get("category").String()),
		Timestamp: ts,
		Price:     price,
		Buyer:     root.Get("buyer").String(),
		Seller:    root.Get("seller").String(),
	}, nil
}

type aggBucket struct {
	entity   string
	period   Period
	category Category
	sum      decimal.Decimal
	prices   []float64
	buyers   map[string]bool
	sellers  map[string]bool
}

// AggregateRecords 把逐笔交易桶化为每(entity, period, category)一行的统计。
// 均价走decimal精确求和后再转float, 中位数/标准差在float域计算。
func AggregateRecords(recs []TxRecord) []TxAggregate {
	buckets := map[joinKey]*aggBucket{}
	for i := range recs {
		r := &recs[i]
		period := PeriodOf(r.Timestamp)
		k := joinKey{entity: r.EntityID, period: period.Index(), category: r.Category}
		b, ok := buckets[k]
		if !ok {
			b = &aggBucket{
				entity:   r.EntityID,
				period:   period,
				category: r.Category,
				buyers:   map[string]bool{},
				sellers:  map[string]bool{},
			}
			buckets[k] = b
		}
		b.sum = b.sum.Add(r.Price)
		b.prices = append(b.prices, r.Price.InexactFloat64())
		if r.Buyer != "" {
			b.buyers[r.Buyer] = true
		}
		if r.Seller != "" {
			b.sellers[r.Seller] = true
		}
	}

	out := make([]TxAggregate, 0, len(buckets))
	for _, b := range buckets {
		n := len(b.prices)
		sort.Float64s(b.prices)
		var median float64
		if n%2 == 1 {
			median = b.prices[n/2]
		} else {
			median = (b.prices[n/2-1] + b.prices[n/2]) / 2
		}
		std := 0.0
		if n > 1 {
			std = stat.StdDev(b.prices, nil)
		}
		mean := b.sum.Div(decimal.NewFromInt(int64(n))).InexactFloat64()

		out = append(out, TxAggregate{
			EntityID:      b.entity,
			Period:        b.period,
			Category:      b.category,
			PriceMean:     mean,
			PriceMedian:   median,
			PriceStd:      std,
			TxCount:       n,
			UniqueBuyers:  len(b.buyers),
			UniqueSellers: len(b.sellers),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Period.Before(out[j].Period)
	})
	return out
}
