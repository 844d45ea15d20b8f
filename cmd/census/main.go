package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/FlavioCFOliveira/census-mmoe/internal/bench"
	"github.com/FlavioCFOliveira/census-mmoe/internal/census"
	"github.com/FlavioCFOliveira/census-mmoe/internal/metrics"
	"github.com/FlavioCFOliveira/census-mmoe/internal/net"
	"github.com/FlavioCFOliveira/census-mmoe/internal/opt"
)

// Multi-gate Mixture-of-Experts on the census-income data: income and
// marital status share 8 experts, each task has its own gate and tower.
func main() {
	var (
		trainPath   = flag.String("train-data", "data/census-income.data.gz", "training records")
		otherPath   = flag.String("test-data", "data/census-income.test.gz", "records split into validation and test")
		nrows       = flag.Int("nrows", 0, "records to read from each file (0 reads all)")
		normalize   = flag.Bool("normalize", true, "min-max scale features to the training ranges")
		train       = flag.Bool("train", false, "train the model")
		trainEpochs = flag.Int("train-epochs", 1, "training epochs")
		trainBatch  = flag.Int("train-batch", 32, "training batch size")
		report      = flag.Bool("report", false, "print ROC-AUC on every split after each training epoch")
		evaluate    = flag.Bool("evaluate", true, "run the timed evaluation")
		batchSize   = flag.Int("b", 1, "evaluation batch size")
		epochs      = flag.Int("epochs", 10, "evaluation repetitions")
		numIter     = flag.Int("num_iter", 200, "evaluation steps per repetition cap")
		numWarmup   = flag.Int("num_warmup", 3, "warm-up repetitions excluded from the aggregate")
		seed        = flag.Int64("seed", 1, "seed for initialization, shuffling and the split")
		experts     = flag.Int("experts", 8, "number of experts")
		units       = flag.Int("units", 4, "expert embedding width")
		tower       = flag.String("tower", "8", "comma separated tower hidden widths")
		lr          = flag.Float64("lr", 0.001, "Adam learning rate")
		profile     = flag.String("profile", "", "write a CPU profile of the middle evaluation repetition")
		metricsCSV  = flag.String("metrics-csv", "", "write per-epoch ROC-AUC records to this CSV file")
		metricsDB   = flag.String("metrics-db", "", "store losses, ROC-AUC and benchmarks in this SQLite file")
		savePath    = flag.String("save", "", "save the trained model")
		loadPath    = flag.String("load", "", "load a saved model instead of building one")
	)
	flag.Parse()
	log.SetFlags(0)

	hidden, err := parseWidths(*tower)
	if err != nil {
		log.Fatalf("Invalid -tower: %v", err)
	}

	data, err := census.Load(census.Config{
		TrainPath: *trainPath,
		OtherPath: *otherPath,
		Rows:      *nrows,
		Seed:      *seed,
		Normalize: *normalize,
	})
	if err != nil {
		log.Fatalf("Error loading census data: %v", err)
	}

	fmt.Printf("Training data shape = (%d, %d)\n", data.Train.Rows(), len(data.Features))
	fmt.Printf("Validation data shape = (%d, %d)\n", data.Validation.Rows(), len(data.Features))
	fmt.Printf("Test data shape = (%d, %d)\n", data.Test.Rows(), len(data.Features))

	var model *net.Model
	if *loadPath != "" {
		model, err = net.Load(*loadPath)
	} else {
		model, err = net.Build(net.Config{
			InputWidth:  len(data.Features),
			NumExperts:  *experts,
			Units:       *units,
			NumTasks:    len(data.Tasks),
			Tasks:       data.Tasks,
			TowerHidden: hidden,
			Optimizer:   opt.NewAdam(*lr),
			Seed:        *seed,
			Normalized:  *normalize,
		})
	}
	if err != nil {
		log.Fatalf("Error creating model: %v", err)
	}
	if *loadPath != "" && model.Config().Normalized != *normalize {
		log.Fatalf("Model %s was trained with -normalize=%v", *loadPath, model.Config().Normalized)
	}
	model.Summary(os.Stdout)

	var store *metrics.Store
	if *metricsDB != "" {
		store, err = metrics.OpenStore(*metricsDB, fmt.Sprintf("seed-%d", *seed))
		if err != nil {
			log.Fatalf("Error opening metrics store: %v", err)
		}
		defer store.Close()
	}

	if *train {
		reporter := metrics.NewReporter(os.Stdout, data.Train, data.Validation, data.Test)
		hooks := []net.EpochHook{net.Logger{Interval: 1}}
		if *report || *metricsCSV != "" || store != nil {
			hooks = append(hooks, reporter)
		}
		if *metricsCSV != "" {
			csvLog := metrics.NewCSVLogger(*metricsCSV, false, reporter.Log)
			defer csvLog.Close()
			hooks = append(hooks, csvLog)
		}
		if store != nil {
			store.Log = reporter.Log
			hooks = append(hooks, store)
		}

		if _, err := model.Fit(data.Train, *trainEpochs, *trainBatch, hooks...); err != nil {
			log.Fatalf("Training failed: %v", err)
		}

		if *savePath != "" {
			if err := model.Save(*savePath); err != nil {
				log.Fatalf("Error saving model: %v", err)
			}
			fmt.Printf("Model saved to %s\n", *savePath)
		}
	}

	if *evaluate {
		fmt.Println("## Evaluate Start:")
		h := bench.Harness{
			BatchSize: *batchSize,
			Epochs:    *epochs,
			Warmup:    *numWarmup,
			NumIter:   *numIter,
			Logger:    log.Default(),
		}
		if *profile != "" {
			f, err := os.Create(*profile)
			if err != nil {
				log.Fatalf("Error creating profile: %v", err)
			}
			defer f.Close()
			h.Profile = f
		}

		res, err := h.Run(model, data.Test)
		if err != nil {
			log.Fatalf("Evaluation failed: %v", err)
		}
		fmt.Printf("Test %s\n", res.Losses)
		fmt.Println(res)

		if store != nil {
			if err := store.WriteBenchmark(*batchSize, res); err != nil {
				log.Fatalf("Error storing benchmark: %v", err)
			}
		}
	}
}

func parseWidths(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("no widths")
	}
	parts := strings.Split(s, ",")
	widths := make([]int, len(parts))
	for i, p := range parts {
		w, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if w <= 0 {
			return nil, fmt.Errorf("width %d must be positive", w)
		}
		widths[i] = w
	}
	return widths, nil
}
