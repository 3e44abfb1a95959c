// Command x86db is the CLI front door over the instruction database,
// encoder/parser and port-decomposition solver: decode and encode single
// instructions, run a decomposition against a measurement file, or dump
// the built-in database for offline inspection.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-json-experiment/json"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oisee/x86isa/pkg/codec"
	"github.com/oisee/x86isa/pkg/decomp"
	"github.com/oisee/x86isa/pkg/decoded"
	"github.com/oisee/x86isa/pkg/isa"
	"github.com/oisee/x86isa/pkg/microarch"
)

var log = logrus.New()

func init() {
	log.SetLevel(logrus.WarnLevel)

	spew.Config = spew.ConfigState{
		Indent:                  "  ",
		SortKeys:                true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		ContinueOnMethod:        true,
		SpewKeys:                true,
		MaxDepth:                4,
	}
}

func builtinDatabase() *isa.Database {
	db, err := isa.NewDatabase(isa.BuiltinSpecs())
	if err != nil {
		log.WithError(err).Fatal("builtin database failed to construct")
	}
	return db
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "x86db",
		Short: "x86-64 instruction database, codec and port-decomposition CLI",
	}

	rootCmd.AddCommand(newDecodeCmd(), newEncodeCmd(), newDecomposeCmd(), newDumpDBCmd())

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex-bytes>",
		Short: "Parse a hex byte string against the built-in database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.ReplaceAll(args[0], " ", "")
			data, err := hex.DecodeString(raw)
			if err != nil {
				return fmt.Errorf("invalid hex %q: %w", args[0], err)
			}

			parser := codec.Parser{DB: builtinDatabase()}
			in, spec, n, err := parser.Parse(data)
			if err != nil {
				log.WithError(err).Warn("parse failed")
				return err
			}

			fmt.Printf("mnemonic: %s (%d/%d bytes consumed)\n", spec.Mnemonic, n, len(data))
			fmt.Print(spew.Sdump(in))
			return nil
		},
	}
}

func newEncodeCmd() *cobra.Command {
	var regField string
	var rmField string

	cmd := &cobra.Command{
		Use:   "encode <mnemonic>",
		Short: "Build and encode an instruction from its mnemonic and operand flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mnemonic := args[0]
			db := builtinDatabase()

			indices := db.ByMnemonic(mnemonic)
			if len(indices) == 0 {
				return fmt.Errorf("no spec found for mnemonic %q", mnemonic)
			}
			spec := db.Instruction(indices[0])
			in := decoded.NewFromSpec(spec)

			var err error
			if regField != "" {
				in, err = setRegisterFlag(in, decoded.RoleModRMReg, regField)
				if err != nil {
					return err
				}
			}
			if rmField != "" {
				in, err = setRegisterFlag(in, decoded.RoleModRMRM, rmField)
				if err != nil {
					return err
				}
			}

			out, err := codec.Encode(spec, in)
			if err != nil {
				log.WithError(err).Warn("encode failed")
				return err
			}
			fmt.Println(hex.EncodeToString(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&regField, "reg", "", "register name for the ModR/M reg field")
	cmd.Flags().StringVar(&rmField, "rm", "", "register name for the ModR/M rm field")
	return cmd
}

func setRegisterFlag(in decoded.Instruction, role decoded.OperandRole, name string) (decoded.Instruction, error) {
	reg := isa.RegisterByName(strings.ToUpper(name))
	if reg == isa.InvalidRegister {
		return in, fmt.Errorf("unknown register %q", name)
	}
	return in.SetRegister(role, reg)
}

func newDecomposeCmd() *cobra.Command {
	var archName string
	var maxUops int
	var fixedUops int
	var retired float64
	var budget float64

	cmd := &cobra.Command{
		Use:   "decompose <measurements.json>",
		Short: "Infer a port-usage decomposition from a performance-counter measurement file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var measurements []decomp.Measurement
			if err := json.Unmarshal(raw, &measurements); err != nil {
				return fmt.Errorf("decode measurements: %w", err)
			}

			arch, ok := microarch.BuiltinRegistry().Lookup(archName)
			if !ok {
				return fmt.Errorf("unknown microarchitecture %q", archName)
			}

			problem := decomp.Problem{
				CandidateMasks: arch.Masks,
				Measurements:   measurements,
				MaxUops:        maxUops,
				FixedUops:      fixedUops,
				Retired:        retired,
				MaxLoadPerUop:  1.0,
				ErrorBudget:    budget,
			}
			sol, err := decomp.SolveWithRestarts(problem, 4)
			if err != nil {
				log.WithError(err).Warn("decomposition failed")
				return err
			}

			order := decomp.Order(sol, arch)
			fmt.Printf("objective: %.2f  error: %.4f  max-error: %.4f  uops: %d\n", sol.Objective, sol.Error, sol.MaxError, sol.NumUops)
			for _, i := range order {
				fmt.Printf("  %-8s shares=%v\n", sol.Masks[i], sol.PortLoads[i])
			}
			if !decomp.IsOrderUnique(sol, arch) {
				log.Warn("program order is not uniquely determined by this decomposition")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&archName, "arch", "hsw", "microarchitecture id in the built-in registry (hsw, snb, ivb)")
	cmd.Flags().IntVar(&maxUops, "max-uops", 8, "maximum uop count to search (ignored if --fixed-uops is set)")
	cmd.Flags().IntVar(&fixedUops, "fixed-uops", 0, "force an exact uop count instead of searching")
	cmd.Flags().Float64Var(&retired, "retired", 0, "measured retired-uops-per-iteration count (floors the uop search and is rejected above 50)")
	cmd.Flags().Float64Var(&budget, "error-budget", 0.05, "maximum acceptable L1 reconstruction error")
	return cmd
}

func newDumpDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump-db",
		Short: "Marshal the built-in instruction database to JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := builtinDatabase()
			specs := make([]isa.Spec, 0, db.NumInstructions())
			db.All(func(_ isa.Index, s isa.Spec) bool {
				specs = append(specs, s)
				return true
			})
			out, err := json.Marshal(specs)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			fmt.Println()
			return err
		},
	}
}
