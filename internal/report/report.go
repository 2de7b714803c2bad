package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"candlelab/internal/backtest"
	"candlelab/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEntry         = "#3b82f6"
	colorExit          = "#fbbf24"
	colorEquity        = "#a78bfa"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	equityHeightPx = 300
)

// Input 是渲染一次回测报告所需的数据。
type Input struct {
	Run    backtest.Run
	Bars   map[string][]market.Bar
	Trades []backtest.Trade
}

// Render 为每个 symbol 输出一张带出入场标记的 K 线图，
// 末尾附整次回测按入场日期累计的净收益曲线，写成单页 HTML。
func Render(w io.Writer, input Input) error {
	if len(input.Trades) == 0 {
		return fmt.Errorf("没有成交可渲染")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	bySymbol := make(map[string][]backtest.Trade)
	for _, t := range input.Trades {
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}
	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		bars := input.Bars[symbol]
		if len(bars) == 0 {
			continue
		}
		page.AddCharts(buildKlineChart(symbol, bars, bySymbol[symbol]))
	}
	page.AddCharts(buildEquityChart(input.Run, input.Trades))

	if len(page.Charts) == 0 {
		return fmt.Errorf("没有图表可渲染")
	}
	return page.Render(w)
}

func buildKlineChart(symbol string, bars []market.Bar, trades []backtest.Trade) *charts.Kline {
	minPrice, maxPrice := priceBounds(bars)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      strings.ToUpper(symbol),
			Subtitle:   fmt.Sprintf("%d 笔成交", len(trades)),
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{
				Color: colorTextSecondary,
			},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(bars)
	data := make([]opts.KlineData, 0, len(bars))
	for _, b := range bars {
		data = append(data, opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	markers := buildTradeMarkers(bars, trades)
	markers.SetXAxis(xAxis)
	kline.Overlap(markers)
	return kline
}

// buildTradeMarkers 把出入场画成两条散点序列，对齐 K 线的 x 轴。
func buildTradeMarkers(bars []market.Bar, trades []backtest.Trade) *charts.Scatter {
	entries := make([]opts.ScatterData, len(bars))
	exits := make([]opts.ScatterData, len(bars))
	for i := range bars {
		entries[i] = opts.ScatterData{Value: nil}
		exits[i] = opts.ScatterData{Value: nil}
	}
	for _, t := range trades {
		if idx := market.IndexOfDate(bars, t.EntryDate); idx >= 0 {
			entries[idx] = opts.ScatterData{
				Value:      round(t.EntryPrice, 4),
				Symbol:     "triangle",
				SymbolSize: 12,
			}
		}
		if idx := market.IndexOfDate(bars, t.ExitDate); idx >= 0 {
			exits[idx] = opts.ScatterData{
				Value:      round(t.ExitPrice, 4),
				Symbol:     "diamond",
				SymbolSize: 12,
			}
		}
	}
	scatter := charts.NewScatter()
	scatter.AddSeries("Entry", entries, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorEntry}))
	scatter.AddSeries("Exit", exits, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorExit}))
	return scatter
}

// buildEquityChart 按入场日期顺序累计净收益（等权逐笔相加）。
func buildEquityChart(run backtest.Run, trades []backtest.Trade) *charts.Line {
	ordered := append([]backtest.Trade(nil), trades...)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].EntryDate.Equal(ordered[j].EntryDate) {
			return ordered[i].EntryDate.Before(ordered[j].EntryDate)
		}
		return ordered[i].Symbol < ordered[j].Symbol
	})

	xAxis := make([]string, len(ordered))
	data := make([]opts.LineData, len(ordered))
	cum := 0.0
	for i, t := range ordered {
		cum += t.NetReturn
		xAxis[i] = t.EntryDate.Format("2006-01-02")
		data[i] = opts.LineData{Value: round(cum, 6)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "Cumulative Net Return",
			Subtitle:   fmt.Sprintf("run %s", run.ID),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
			SubtitleStyle: &opts.TextStyle{
				Color: colorTextSecondary,
			},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	line.SetSeriesOptions(
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("net", data)
	return line
}

func buildXAxis(bars []market.Bar) []string {
	x := make([]string, len(bars))
	for i, b := range bars {
		x[i] = b.Date.Format("2006-01-02")
	}
	return x
}

func priceBounds(bars []market.Bar) (minVal, maxVal float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	minVal = bars[0].Low
	maxVal = bars[0].High
	for _, b := range bars {
		if b.Low < minVal {
			minVal = b.Low
		}
		if b.High > maxVal {
			maxVal = b.High
		}
	}
	return minVal, maxVal
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
