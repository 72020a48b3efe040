package config

import "fmt"

func errBorrowCap(market, value string) error {
	return fmt.Errorf("market %s: invalid BorrowCapTotal %q", market, value)
}

// Validate rejects configurations a pool or auction constructor would later
// refuse, so operators see one coherent error at load time.
func (c *Config) Validate() error {
	if c.Oracle.MaxDeviationBps > 10_000 {
		return fmt.Errorf("oracle: MaxDeviationBps > 10000")
	}
	if c.Auction.EndDiscountBps >= 10_000 {
		return fmt.Errorf("auction: EndDiscountBps >= 10000")
	}
	if c.Auction.DurationSeconds == 0 {
		return fmt.Errorf("auction: DurationSeconds == 0")
	}
	if len(c.Markets) == 0 {
		return fmt.Errorf("markets: at least one market required")
	}
	seen := make(map[string]struct{}, len(c.Markets))
	for _, m := range c.Markets {
		if m.ID == "" {
			return fmt.Errorf("markets: empty ID")
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("market %s: duplicate ID", m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.BorrowSymbol == "" || m.CollateralSymbol == "" {
			return fmt.Errorf("market %s: missing token symbols", m.ID)
		}
		if m.BorrowSymbol == m.CollateralSymbol {
			return fmt.Errorf("market %s: borrow and collateral tokens must differ", m.ID)
		}
		if m.MaxLTVBps > 10_000 {
			return fmt.Errorf("market %s: MaxLTVBps > 10000", m.ID)
		}
		if m.LiquidationThresholdBps > 10_000 {
			return fmt.Errorf("market %s: LiquidationThresholdBps > 10000", m.ID)
		}
		if m.MaxLTVBps > m.LiquidationThresholdBps {
			return fmt.Errorf("market %s: MaxLTVBps > LiquidationThresholdBps", m.ID)
		}
		if m.CloseFactorBps > 10_000 {
			return fmt.Errorf("market %s: CloseFactorBps > 10000", m.ID)
		}
		if m.ReserveFactorBps > 10_000 {
			return fmt.Errorf("market %s: ReserveFactorBps > 10000", m.ID)
		}
		if m.KinkBps > 10_000 {
			return fmt.Errorf("market %s: KinkBps > 10000", m.ID)
		}
		if m.UtilizationCapBps > 10_000 {
			return fmt.Errorf("market %s: UtilizationCapBps > 10000", m.ID)
		}
		if _, err := m.BorrowCaps(); err != nil {
			return err
		}
	}
	return nil
}
