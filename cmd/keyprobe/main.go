// Command keyprobe samples the configured key generator and reports how its
// duplicate rate compares with the birthday bound.
package main

import (
	"fmt"
	"os"

	"github.com/sifan077/EphemURL/config"
	"github.com/sifan077/EphemURL/internal/app/keygen"
	"github.com/sifan077/EphemURL/internal/app/keyprobe"
	"github.com/sifan077/EphemURL/internal/infra/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	fs := pflag.NewFlagSet("keyprobe", pflag.ExitOnError)
	samples := fs.IntP("samples", "n", 1_000_000, "number of keys to draw")
	fpRate := fs.Float64("fp-rate", 1e-4, "bloom filter false positive rate")
	fs.IntP("length", "l", config.DefaultKeyLength, "key length (overrides shortener.key_length)")
	fs.StringP("alphabet", "a", config.DefaultAlphabet, "key alphabet (overrides shortener.alphabet)")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	_ = v.BindPFlag("shortener.key_length", fs.Lookup("length"))
	_ = v.BindPFlag("shortener.alphabet", fs.Lookup("alphabet"))

	cfg, err := config.LoadWith(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.MustInit(logger.FromApp(cfg))
	defer func() { _ = logger.Sync() }()

	gen, err := keygen.New(cfg.Shortener.KeyLength, cfg.Shortener.Alphabet)
	if err != nil {
		log.Fatal("invalid key generator settings", zap.Error(err))
	}

	log.Info("probing key generator",
		zap.Int("samples", *samples),
		zap.Int("length", gen.Length()),
		zap.Int("alphabet", len(gen.Alphabet())),
	)

	report, err := keyprobe.Run(gen, keyprobe.Options{Samples: *samples, FalsePositiveRate: *fpRate})
	if err != nil {
		log.Fatal("probe failed", zap.Error(err))
	}

	fmt.Printf("samples:               %d\n", report.Samples)
	fmt.Printf("keyspace:              %.4g\n", report.Keyspace)
	fmt.Printf("duplicates observed:   %d\n", report.Duplicates)
	fmt.Printf("duplicates expected:   %.4g\n", report.ExpectedDuplicates)
	fmt.Printf("filter false positives: %.4g\n", report.ExpectedFalsePositives)
	fmt.Printf("P(any collision):      %.4g\n", report.CollisionProbability)

	if report.Suspicious() {
		log.Warn("duplicate rate exceeds the birthday bound", zap.Int("duplicates", report.Duplicates))
		_ = logger.Sync()
		os.Exit(2)
	}
}
