package main

import (
	"fmt"
	"strconv"
	"strings"

	"cartel/internal/game"

	"github.com/fatih/color"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printSuccess(format string, args ...any) {
	success.Println(fmt.Sprintf(format, args...))
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func printDashboard(a game.Aggregate) {
	accent.Printf("\n== %s ==\n", a.Username)
	fmt.Printf("Cash:        $%s\n", comma(a.Cash))
	fmt.Printf("Reputation:  %s\n", comma(a.Reputation))
	fmt.Printf("Customers:   %d/%d\n", a.Customers, a.CustomersMax)
	fmt.Printf("Referrals:   %d (code %s)\n", a.Referrals, a.ReferralCode)
	if len(a.Achievements) > 0 {
		fmt.Printf("Unlocked:    %s\n", strings.Join(a.Achievements, ", "))
	}

	fmt.Println()
	accent.Println("Stash")
	if len(a.Inventory) == 0 {
		printInfo("Nothing stashed yet.")
	} else {
		fmt.Printf("%-10s %10s %10s %6s\n", "PRODUCT", "QTY", "CAP", "LVL")
		for _, inv := range a.Inventory {
			fmt.Printf("%-10s %10s %10s %6d\n", inv.Product, comma(inv.Quantity), comma(inv.Capacity), inv.Level)
		}
	}

	fmt.Println()
	accent.Println("Labs")
	if len(a.Plots) == 0 {
		printInfo("No labs installed yet.")
	} else {
		fmt.Printf("%-6s %-10s %8s %8s %10s %10s\n", "PLOT", "PRODUCT", "CAP LVL", "PROD LVL", "ACCRUED", "CAP")
		for _, p := range a.Plots {
			fmt.Printf("%-6d %-10s %8d %8d %10s %10s\n",
				p.Slot, p.Product, p.CapacityLevel, p.ProductionLevel, comma(p.Accrued), comma(p.Capacity))
		}
	}

	fmt.Println()
	accent.Println("Shipping Lanes")
	if len(a.Lanes) == 0 {
		printInfo("No lanes owned yet.")
	} else {
		fmt.Printf("%-12s %8s %8s %10s %-8s\n", "METHOD", "CAP LVL", "SPD LVL", "CAP", "READY")
		for _, l := range a.Lanes {
			ready := warn.Sprint("no")
			if l.Ready {
				ready = success.Sprint("yes")
			}
			fmt.Printf("%-12s %8d %8d %10s %-8s\n", l.Method, l.CapacityLevel, l.SpeedLevel, comma(l.Capacity), ready)
		}
	}

	fmt.Println()
	accent.Println("Combat")
	if !a.Combat.Enabled {
		printInfo("PvP disabled. Run `cartelctl pvp enable` to opt in.")
	} else {
		fmt.Printf("Record:      %dW / %dL\n", a.Combat.Victories, a.Combat.Defeats)
		fmt.Printf("Attacks:     %d left today\n", a.Combat.AttacksLeft)
		fmt.Printf("Defenses:    %d left today\n", a.Combat.DefendsLeft)
		if len(a.Gear) > 0 {
			fmt.Printf("Gear:        %s\n", strings.Join(a.Gear, ", "))
		}
	}
	fmt.Println()
}

func printPrices(prices []game.PriceView) {
	accent.Println("\n== STREET PRICES ==")
	if len(prices) == 0 {
		printInfo("No products on the market.")
		return
	}
	fmt.Printf("%-10s %10s %10s %-28s\n", "PRODUCT", "BASE", "NOW", "EVENT")
	for _, p := range prices {
		event := ""
		if p.Event != "" {
			event = fmt.Sprintf("%s (x%.2f)", p.Event, p.EventMult)
		}
		fmt.Printf("%-10s %10s %10s %-28s\n",
			p.Product,
			"$"+comma(p.BasePrice),
			colorizePrice(p.Price, p.BasePrice),
			truncate(event, 28),
		)
	}
	fmt.Println()
}

func printTrade(verb string, out game.TradeResult) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(verb))
	fmt.Printf("Product:  %s\n", out.Product)
	fmt.Printf("Quantity: %s\n", comma(out.Quantity))
	fmt.Printf("Price:    $%s each\n", comma(out.UnitPrice))
	fmt.Printf("Total:    $%s\n", comma(out.Total))
	fmt.Printf("Cash:     $%s\n", comma(out.Cash))
	fmt.Println()
}

func printCollect(p game.PlotView) {
	printSuccess("Collected from plot %d (%s)", p.Slot, p.Product)
	fmt.Printf("Left pending: %s\n", comma(p.Pending))
}

func printShipment(out game.ShipmentResult) {
	accent.Println("\n== SHIPMENT SENT ==")
	fmt.Printf("Method:   %s\n", out.Method)
	fmt.Printf("Product:  %s\n", out.Product)
	fmt.Printf("Quantity: %s\n", comma(out.Quantity))
	fmt.Printf("Payout:   $%s\n", comma(out.Payout))
	fmt.Printf("Cash:     $%s\n", comma(out.Cash))
	fmt.Printf("Next at:  %s\n", out.NextAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Println()
}

func printBattle(selfID string, out game.BattleResult) {
	if out.WinnerID == selfID {
		success.Printf("\nVICTORY in %d rounds.\n", out.Rounds)
		if out.Loot > 0 {
			fmt.Printf("Looted $%s from %s\n", comma(out.Loot), out.DefenderID)
		}
	} else {
		danger.Printf("\nDEFEAT after %d rounds.\n", out.Rounds)
	}
	fmt.Println()
}

func printBattleLog(selfID string, battles []game.BattleResult) {
	accent.Println("\n== BATTLE LOG ==")
	if len(battles) == 0 {
		printInfo("No battles on record.")
		return
	}
	fmt.Printf("%-16s %-8s %-36s %7s %10s\n", "WHEN", "RESULT", "OPPONENT", "ROUNDS", "LOOT")
	for _, b := range battles {
		result := danger.Sprint("loss")
		opponent := b.AttackerID
		if b.AttackerID == selfID {
			opponent = b.DefenderID
		}
		if b.WinnerID == selfID {
			result = success.Sprint("win")
		}
		fmt.Printf("%-16s %-8s %-36s %7d %10s\n",
			b.CreatedAt.Local().Format("2006-01-02 15:04"),
			result,
			truncate(opponent, 36),
			b.Rounds,
			"$"+comma(b.Loot),
		)
	}
	fmt.Println()
}

func printLeaderboard(rows []game.LeaderboardRow) {
	accent.Println("\n== KINGPINS ==")
	if len(rows) == 0 {
		printInfo("No players ranked yet.")
		return
	}
	fmt.Printf("%-6s %-24s %12s %14s %6s\n", "RANK", "PLAYER", "REP", "CASH", "WINS")
	for _, row := range rows {
		fmt.Printf("%-6d %-24s %12s %14s %6d\n",
			row.Rank,
			truncate(row.Username, 24),
			comma(row.Reputation),
			"$"+comma(row.Cash),
			row.Victories,
		)
	}
	fmt.Println()
}

func colorizePrice(now, base int64) string {
	text := "$" + comma(now)
	switch {
	case now > base:
		return success.Sprint(text)
	case now < base:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
