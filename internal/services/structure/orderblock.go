package structure

import "SetupScan/internal/domain/models"

// findOrderBlock looks back from a structural event at i for the most recent candle of the
// opposite color with a dominant body.
func (d *Detector) findOrderBlock(cs []models.Candle, i int, dir models.Direction) (models.OrderBlock, bool) {
	stop := i - d.cfg.OrderBlockLookback
	if stop < 0 {
		stop = 0
	}
	for k := i - 1; k >= stop; k-- {
		c := cs[k]
		if c.Range() <= 0 || c.Body()/c.Range() <= d.cfg.MinBodyRatio {
			continue
		}
		if dir == models.Bullish && c.Bearish() {
			return models.OrderBlock{Direction: dir, CreatedIdx: i, CandleIdx: k, Upper: c.Open, Lower: c.Low, Status: models.OrderBlockActive}, true
		}
		if dir == models.Bearish && c.Bullish() {
			return models.OrderBlock{Direction: dir, CreatedIdx: i, CandleIdx: k, Upper: c.High, Lower: c.Open, Status: models.OrderBlockActive}, true
		}
	}
	return models.OrderBlock{}, false
}

// trackOrderBlocks replays candles after each block's creation to count touches and detect
// a close through the far side of the zone.
func (d *Detector) trackOrderBlocks(cs []models.Candle, obs []models.OrderBlock) {
	for n := range obs {
		ob := &obs[n]
		for k := ob.CreatedIdx + 1; k < len(cs); k++ {
			c := cs[k]
			if ob.Direction == models.Bullish {
				if c.Close < ob.Lower {
					ob.Status = models.OrderBlockBroken
					break
				}
				if c.Low <= ob.Upper {
					ob.Touches++
					ob.Status = models.OrderBlockTested
				}
				continue
			}
			if c.Close > ob.Upper {
				ob.Status = models.OrderBlockBroken
				break
			}
			if c.High >= ob.Lower {
				ob.Touches++
				ob.Status = models.OrderBlockTested
			}
		}
	}
}

// LiveOrderBlocks returns the blocks of dir that have not been broken, newest first.
func LiveOrderBlocks(a *models.Analysis, dir models.Direction) []models.OrderBlock {
	if a == nil {
		return nil
	}
	var out []models.OrderBlock
	for i := len(a.OrderBlocks) - 1; i >= 0; i-- {
		ob := a.OrderBlocks[i]
		if ob.Direction == dir && ob.Status != models.OrderBlockBroken {
			out = append(out, ob)
		}
	}
	return out
}
