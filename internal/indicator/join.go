package indicator

import (
	"fmt"
	"math"
	"sort"
)

// Join 以 open_time 外连接多个币种的表，列名为 <列>_<币种>，缺失单元为 NaN。
func Join(tables map[string]Table) (Table, error) {
	coins := make([]string, 0, len(tables))
	for coin := range tables {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	type source struct {
		table   Table
		key     int
		columns []int
	}

	joined := Table{Columns: []string{ColumnOpenTime}}
	sources := make([]source, 0, len(coins))
	for _, coin := range coins {
		table := tables[coin]
		key := table.Index(ColumnOpenTime)
		if key < 0 {
			return Table{}, fmt.Errorf("indicator: %s 的表缺少 %s 列", coin, ColumnOpenTime)
		}
		src := source{table: table, key: key}
		for i, name := range table.Columns {
			if i == key {
				continue
			}
			src.columns = append(src.columns, i)
			joined.Columns = append(joined.Columns, fmt.Sprintf("%s_%s", name, coin))
		}
		sources = append(sources, src)
	}

	rows := make(map[float64][]float64)
	var keys []float64
	offset := 1
	for _, src := range sources {
		for _, row := range src.table.Rows {
			ts := row[src.key]
			target, ok := rows[ts]
			if !ok {
				target = make([]float64, len(joined.Columns))
				for i := range target {
					target[i] = math.NaN()
				}
				target[0] = ts
				rows[ts] = target
				keys = append(keys, ts)
			}
			for j, idx := range src.columns {
				target[offset+j] = row[idx]
			}
		}
		offset += len(src.columns)
	}

	sort.Float64s(keys)
	joined.Rows = make([][]float64, 0, len(keys))
	for _, ts := range keys {
		joined.Rows = append(joined.Rows, rows[ts])
	}
	return joined, nil
}
