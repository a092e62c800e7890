package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "cartel/internal/cli"
	"cartel/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "cartelctl",
		Short:        "Cartel CLI game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newUseCmd(),
		newLogoutCmd(),
		newDashCmd(&apiBase),
		newMarketCmd(&apiBase),
		newBuyCmd(&apiBase),
		newSellCmd(&apiBase),
		newLabCmd(&apiBase),
		newLaneCmd(&apiBase),
		newGearCmd(&apiBase),
		newStashCmd(&apiBase),
		newClaimCmd(&apiBase),
		newPvpCmd(&apiBase),
		newTopCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newUseCmd() *cobra.Command {
	var name string
	c := &cobra.Command{
		Use:   "use <player-id>",
		Short: "Select the player identity for subsequent commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cl.Session{PlayerID: strings.TrimSpace(args[0]), DisplayName: strings.TrimSpace(name)}
			if s.PlayerID == "" {
				return fmt.Errorf("player id is required")
			}
			if err := cl.SaveSession(s); err != nil {
				return err
			}
			printSuccess("Session saved for %s", s.PlayerID)
			return nil
		},
	}
	c.Flags().StringVar(&name, "name", "", "display name")
	return c
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved player identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Session cleared")
			return nil
		},
	}
}

func newDashCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show your empire",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			agg, err := newClient(apiBase).Me(ctx, s)
			if err != nil {
				return err
			}
			printDashboard(agg)
			return nil
		},
	}
}

func newMarketCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show current street prices and the active market event",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			prices, err := newClient(apiBase).Prices(ctx)
			if err != nil {
				return err
			}
			printPrices(prices)
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <product> <qty>",
		Short: "Buy product at street price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrade(cmd, apiBase, args, "buy")
		},
	}
}

func newSellCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sell <product> <qty>",
		Short: "Sell product to your street customers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrade(cmd, apiBase, args, "sell")
		},
	}
}

func runTrade(cmd *cobra.Command, apiBase *string, args []string, side string) error {
	s, err := cl.LoadSession()
	if err != nil {
		return err
	}
	qty, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || qty <= 0 {
		return fmt.Errorf("quantity must be a positive integer")
	}
	ctx, cancel := cmdContext(cmd)
	defer cancel()
	client := newClient(apiBase)
	idem := uuid.NewString()
	if side == "buy" {
		out, err := client.Buy(ctx, s, args[0], qty, idem)
		if err != nil {
			return err
		}
		printTrade("Bought", out)
		return nil
	}
	out, err := client.Sell(ctx, s, args[0], qty, idem)
	if err != nil {
		return err
	}
	printTrade("Sold", out)
	return nil
}

func newLabCmd(apiBase *string) *cobra.Command {
	lab := &cobra.Command{
		Use:   "lab",
		Short: "Manage production labs",
	}
	lab.AddCommand(
		&cobra.Command{
			Use:   "install <slot> <product>",
			Short: "Build a lab on an empty plot",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := cl.LoadSession()
				if err != nil {
					return err
				}
				slot, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("slot must be an integer")
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				if err := newClient(apiBase).InstallLab(ctx, s, slot, args[1], uuid.NewString()); err != nil {
					return err
				}
				printSuccess("Lab installed on plot %d", slot)
				return nil
			},
		},
		&cobra.Command{
			Use:   "collect <slot>",
			Short: "Collect accrued production into the stash",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := cl.LoadSession()
				if err != nil {
					return err
				}
				slot, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("slot must be an integer")
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				out, err := newClient(apiBase).Collect(ctx, s, slot, uuid.NewString())
				if err != nil {
					return err
				}
				printCollect(out)
				return nil
			},
		},
		&cobra.Command{
			Use:   "upgrade <slot> <capacity|production>",
			Short: "Upgrade a lab",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := cl.LoadSession()
				if err != nil {
					return err
				}
				slot, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("slot must be an integer")
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				if err := newClient(apiBase).UpgradeLab(ctx, s, slot, args[1], uuid.NewString()); err != nil {
					return err
				}
				printSuccess("Lab %d upgraded (%s)", slot, args[1])
				return nil
			},
		},
	)
	return lab
}

func newLaneCmd(apiBase *string) *cobra.Command {
	lane := &cobra.Command{
		Use:   "lane",
		Short: "Manage shipping lanes",
	}
	lane.AddCommand(
		&cobra.Command{
			Use:   "buy <method>",
			Short: "Buy a shipping lane",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := cl.LoadSession()
				if err != nil {
					return err
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				if err := newClient(apiBase).BuyLane(ctx, s, args[0], uuid.NewString()); err != nil {
					return err
				}
				printSuccess("Lane %s acquired", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "ship <method> <product> <qty>",
			Short: "Send a wholesale shipment",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := cl.LoadSession()
				if err != nil {
					return err
				}
				qty, err := strconv.ParseInt(args[2], 10, 64)
				if err != nil || qty <= 0 {
					return fmt.Errorf("quantity must be a positive integer")
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				out, err := newClient(apiBase).Ship(ctx, s, args[0], args[1], qty, uuid.NewString())
				if err != nil {
					return err
				}
				printShipment(out)
				return nil
			},
		},
	)
	return lane
}

func newGearCmd(apiBase *string) *cobra.Command {
	gear := &cobra.Command{
		Use:   "gear",
		Short: "Manage combat gear",
	}
	gear.AddCommand(&cobra.Command{
		Use:   "buy <key>",
		Short: "Buy a gear item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(apiBase).BuyGear(ctx, s, args[0], uuid.NewString()); err != nil {
				return err
			}
			printSuccess("Gear %s acquired", args[0])
			return nil
		},
	})
	return gear
}

func newStashCmd(apiBase *string) *cobra.Command {
	stash := &cobra.Command{
		Use:   "stash",
		Short: "Manage stash capacity",
	}
	stash.AddCommand(&cobra.Command{
		Use:   "upgrade <product>",
		Short: "Raise a product's stash level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			if err := newClient(apiBase).UpgradeStash(ctx, s, args[0], uuid.NewString()); err != nil {
				return err
			}
			printSuccess("Stash upgraded for %s", args[0])
			return nil
		},
	})
	return stash
}

func newClaimCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Claim the daily reward",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).ClaimDaily(ctx, s, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess("Daily reward claimed: %v", out["reward"])
			return nil
		},
	}
}

func newPvpCmd(apiBase *string) *cobra.Command {
	pvp := &cobra.Command{
		Use:   "pvp",
		Short: "Asynchronous PvP",
	}
	pvp.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Opt into PvP",
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := cl.LoadSession()
				if err != nil {
					return err
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				if err := newClient(apiBase).EnablePvp(ctx, s, uuid.NewString()); err != nil {
					return err
				}
				printSuccess("PvP enabled. Watch your back.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "attack <defender-id>",
			Short: "Attack another player",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := cl.LoadSession()
				if err != nil {
					return err
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				out, err := newClient(apiBase).Attack(ctx, s, args[0], uuid.NewString())
				if err != nil {
					return err
				}
				printBattle(s.PlayerID, out)
				return nil
			},
		},
		&cobra.Command{
			Use:   "log",
			Short: "Show recent battles",
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := cl.LoadSession()
				if err != nil {
					return err
				}
				ctx, cancel := cmdContext(cmd)
				defer cancel()
				battles, err := newClient(apiBase).BattleLog(ctx, s, 25)
				if err != nil {
					return err
				}
				printBattleLog(s.PlayerID, battles)
				return nil
			},
		},
	)
	return pvp
}

func newTopCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Show the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(cmd)
			defer cancel()
			rows, err := newClient(apiBase).Leaderboard(ctx, 25)
			if err != nil {
				return err
			}
			printLeaderboard(rows)
			return nil
		},
	}
}
