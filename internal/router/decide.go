package router

import (
	"fmt"
	"math"

	"github.com/egemenkeskn/trader-server/internal/models"
)

// Decide 根据建议和当前带符号持仓决定下单方向、数量和是否为平仓单。
//
//	CLOSE, 持仓≠0  -> 与持仓相反的方向, |持仓|, 平仓
//	CLOSE, 持仓=0  -> ErrNoPositionToClose
//	BUY/SELL 减仓  -> 原方向, 建议数量, 平仓
//	BUY/SELL 其他  -> 原方向, 建议数量, 开仓
func Decide(p models.TradeProposal, positionAmt float64) (models.OrderIntent, error) {
	intent := models.OrderIntent{Symbol: p.Symbol}

	switch p.Action {
	case models.ActionClose:
		if positionAmt == 0 {
			return intent, models.ErrNoPositionToClose
		}
		intent.Side = models.Buy
		if positionAmt > 0 {
			intent.Side = models.Sell
		}
		intent.Quantity = math.Abs(positionAmt)
		intent.IsClosing = true
		intent.ReduceOnly = true

	case models.ActionBuy:
		intent.Side = models.Buy
		intent.Quantity = p.Quantity
		intent.IsClosing = positionAmt < 0

	case models.ActionSell:
		intent.Side = models.Sell
		intent.Quantity = p.Quantity
		intent.IsClosing = positionAmt > 0

	default:
		return intent, fmt.Errorf("%w: %q", models.ErrUnsupportedAction, p.Action)
	}

	return intent, nil
}
