package domain

// EvaluateWin decides whether the match is over. The Carrier check runs
// first: once the Carrier is out the healthy side wins, however many players
// are infected.
func EvaluateWin(players map[string]*Player) GameResult {
	carrierAlive, healthyAlive := false, false
	for _, p := range players {
		if !p.IsAlive {
			continue
		}
		switch p.Role {
		case RoleCarrier:
			carrierAlive = true
		case RoleHealthy:
			healthyAlive = true
		}
	}

	switch {
	case !carrierAlive:
		return ResultHealthyWin
	case !healthyAlive:
		return ResultCarrierWin
	default:
		return ResultNone
	}
}
