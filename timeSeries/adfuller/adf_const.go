package adfuller

type LagMode int

const (
	LAG_MODE_AIC   LagMode = iota // "AIC"
	LAG_MODE_BIC                  // "BIC"
	LAG_MODE_TSTAT                // "t-stat"
	LAG_MODE_ERROR                // "ERROR"
)

func (s LagMode) String() string {
	switch s {
	case LAG_MODE_AIC:
		return "AIC"
	case LAG_MODE_BIC:
		return "BIC"
	case LAG_MODE_TSTAT:
		return "t-stat"
	default:
		return "ERROR"
	}
}

func GetMyLagMode(s string) LagMode {
	switch s {
	case "AIC":
		return LAG_MODE_AIC
	case "BIC":
		return LAG_MODE_BIC
	case "t-stat":
		return LAG_MODE_TSTAT
	default:
		return LAG_MODE_ERROR
	}
}

// 左尾ADF临界值
var adfLeftTailCriticalValues = map[string]map[string]float64{
	"n":  {"1%": -2.58, "5%": -1.95, "10%": -1.62},
	"c":  {"1%": -3.43, "5%": -2.86, "10%": -2.57},
	"ct": {"1%": -3.96, "5%": -3.41, "10%": -3.13},
}

// MacKinnon(1994) "c"趋势的tau近似曲面系数
// p = Φ(poly(τ)); τ<=tauStar 用小p多项式, 否则用大p多项式
const (
	tauMaxC  = 2.74
	tauMinC  = -18.83
	tauStarC = -1.61
)

var (
	tauSmallPC = []float64{2.1659, 1.4412, 0.038269}
	tauLargePC = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)
