package structure

import "SetupScan/internal/domain/models"

// detectSweeps scans up to LiquidityLookback bars after each equal level is confirmed. The
// first bar trading through the level decides it: a close back on the origin side is a
// sweep, a close beyond it consumes the level without one.
func (d *Detector) detectSweeps(cs []models.Candle, levels []models.EqualLevel) []models.LiquiditySweep {
	var out []models.LiquiditySweep
	for _, lvl := range levels {
		end := lvl.ConfirmedAt + d.cfg.LiquidityLookback
		for k := lvl.ConfirmedAt + 1; k <= end && k < len(cs); k++ {
			c := cs[k]
			if lvl.Kind == models.SwingHigh {
				if c.High <= lvl.Price {
					continue
				}
				if c.Close < lvl.Price {
					out = append(out, models.LiquiditySweep{Direction: models.Bearish, Index: k, Level: lvl.Price, Timestamp: c.Timestamp})
				}
				break
			}
			if c.Low >= lvl.Price {
				continue
			}
			if c.Close > lvl.Price {
				out = append(out, models.LiquiditySweep{Direction: models.Bullish, Index: k, Level: lvl.Price, Timestamp: c.Timestamp})
			}
			break
		}
	}
	return out
}
