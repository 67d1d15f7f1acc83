package structure

import "SetupScan/internal/domain/models"

// detectFVGs finds every three-candle gap and marks it filled at the first later candle
// whose range overlaps the bounds. Fill is never undone.
func (d *Detector) detectFVGs(cs []models.Candle) []models.FVG {
	var out []models.FVG
	for i := 2; i < len(cs); i++ {
		first, third := cs[i-2], cs[i]
		var g models.FVG
		switch {
		case third.Low > first.High:
			g = models.FVG{Direction: models.Bullish, Index: i - 1, Lower: first.High, Upper: third.Low}
		case third.High < first.Low:
			g = models.FVG{Direction: models.Bearish, Index: i - 1, Lower: third.High, Upper: first.Low}
		default:
			continue
		}
		g.CE = (g.Lower + g.Upper) / 2
		for k := i + 1; k < len(cs); k++ {
			if cs[k].Low <= g.Upper && cs[k].High >= g.Lower {
				g.Filled = true
				g.FilledAt = k
				break
			}
		}
		out = append(out, g)
	}
	return out
}

// UnfilledFVGs returns the gaps of dir that price has not traded back into.
func UnfilledFVGs(a *models.Analysis, dir models.Direction) []models.FVG {
	if a == nil {
		return nil
	}
	var out []models.FVG
	for _, g := range a.FVGs {
		if !g.Filled && g.Direction == dir {
			out = append(out, g)
		}
	}
	return out
}
