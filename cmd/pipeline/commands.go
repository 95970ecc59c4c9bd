package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/usecase"
)

var vintageFlag = &cli.StringFlag{
	Name:  "vintage",
	Usage: "dataset date as YYYY-MM-DD (default: today, UTC)",
}

func parseVintage(cCtx *cli.Context) (time.Time, error) {
	raw := cCtx.String("vintage")
	if raw == "" {
		return time.Time{}, nil
	}
	vintage, err := time.Parse(domain.VintageLayout, raw)
	if err != nil {
		return time.Time{}, cli.Exit(fmt.Sprintf("invalid --vintage %q: want YYYY-MM-DD", raw), 2)
	}
	return vintage, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "build datasets for the named cities, or every configured city",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "city", Usage: "city to build (repeatable)"},
			vintageFlag,
		},
		Action: func(cCtx *cli.Context) error {
			vintage, err := parseVintage(cCtx)
			if err != nil {
				return err
			}
			app, err := openApp(cCtx, false)
			if err != nil {
				return err
			}
			defer app.Close()

			var runs []*domain.CityRun
			if names := cCtx.StringSlice("city"); len(names) > 0 {
				for _, name := range names {
					run, err := app.Builder.BuildByName(cCtx.Context, "", name, vintage)
					if run != nil {
						runs = append(runs, run)
					}
					if err != nil && !domain.IsKind(err, domain.ErrSourceData) {
						printRuns(cCtx, runs)
						return err
					}
				}
			} else {
				runs, err = app.Builder.RunAll(cCtx.Context, vintage)
				if err != nil {
					printRuns(cCtx, runs)
					return err
				}
			}
			printRuns(cCtx, runs)
			return nil
		},
	}
}

func printRuns(cCtx *cli.Context, runs []*domain.CityRun) {
	w := tabwriter.NewWriter(cCtx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CITY\tSTATUS\tDATASETS\tRUN")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", run.City, run.Status, len(run.Datasets), run.RunID)
	}
	_ = w.Flush()
}

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "publish a city build request for the worker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "city", Required: true},
			vintageFlag,
		},
		Action: func(cCtx *cli.Context) error {
			vintage, err := parseVintage(cCtx)
			if err != nil {
				return err
			}
			app, err := openApp(cCtx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			job, err := app.EnqueueUC.Enqueue(cCtx.Context, cCtx.String("city"), vintage)
			if err != nil {
				return err
			}
			return printJSON(cCtx, job)
		},
	}
}

func boundariesCommand() *cli.Command {
	return &cli.Command{
		Name:  "boundaries",
		Usage: "list the administrative boundaries of an extract",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "extract", Required: true, Usage: "path to a .osm.pbf file"},
			&cli.BoolFlag{Name: "all", Usage: "include names matched by the AOI denylist"},
		},
		Action: func(cCtx *cli.Context) error {
			app, err := openApp(cCtx, false)
			if err != nil {
				return err
			}
			defer app.Close()

			extract, err := app.Opener.Open(cCtx.Context, cCtx.String("extract"), nil)
			if err != nil {
				return err
			}
			defer extract.Close()

			boundaries, err := extract.ListBoundaries(cCtx.Context)
			if err != nil {
				return err
			}
			names := usecase.BoundaryNames(boundaries)
			if !cCtx.Bool("all") {
				denylist, err := usecase.CompileDenylist(app.Pipeline.AOI.Denylist)
				if err != nil {
					return err
				}
				names = usecase.CleanAOINames(names, denylist)
			}
			for _, name := range names {
				fmt.Fprintln(cCtx.App.Writer, name)
			}
			return nil
		},
	}
}

func classifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "classify raw tag values with a configured taxonomy",
		ArgsUsage: "VALUE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "taxonomy", Value: "landuse"},
		},
		Action: func(cCtx *cli.Context) error {
			if cCtx.NArg() == 0 {
				return cli.Exit("classify needs at least one value", 2)
			}
			app, err := openApp(cCtx, false)
			if err != nil {
				return err
			}
			defer app.Close()

			values := cCtx.Args().Slice()
			categories, err := app.Taxonomies.ClassifyValues(cCtx.String("taxonomy"), values)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cCtx.App.Writer, 0, 4, 2, ' ', 0)
			for i, value := range values {
				fmt.Fprintf(w, "%s\t%s\n", value, categories[i])
			}
			return w.Flush()
		},
	}
}

func datasetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "datasets",
		Usage: "list persisted datasets",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "area"},
			&cli.StringFlag{Name: "kind", Usage: "landuse, natural, buildings, summary or net-{mode}"},
		},
		Action: func(cCtx *cli.Context) error {
			app, err := openApp(cCtx, false)
			if err != nil {
				return err
			}
			defer app.Close()

			datasets, err := app.Datasets.List(cCtx.Context, cCtx.String("area"), cCtx.String("kind"))
			if err != nil {
				return err
			}
			for _, ds := range datasets {
				fmt.Fprintln(cCtx.App.Writer, ds.FileName())
			}
			return nil
		},
	}
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "summarise a persisted dataset per AOI",
		ArgsUsage: "DATASET",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "column", Value: "category", Usage: "category or tag"},
		},
		Action: func(cCtx *cli.Context) error {
			name := strings.TrimSpace(cCtx.Args().First())
			if name == "" {
				return cli.Exit("summary needs a dataset file name", 2)
			}
			app, err := openApp(cCtx, false)
			if err != nil {
				return err
			}
			defer app.Close()

			w := tabwriter.NewWriter(cCtx.App.Writer, 0, 4, 2, ' ', 0)
			if strings.Contains(name, "-net-") {
				rows, err := app.Datasets.NetworkLength(cCtx.Context, name)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "AOI\tLENGTH_M\tLENGTH_KM")
				for _, row := range rows {
					fmt.Fprintf(w, "%s\t%.2f\t%d\n", row.AOIName, row.LengthM, row.LengthK)
				}
				return w.Flush()
			}

			rows, err := app.Datasets.Summary(cCtx.Context, name, cCtx.String("column"))
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "AOI\tCATEGORY\tCOUNT\tAOI_TOTAL\tPERCENT")
			for _, row := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\n", row.AOIName, row.Category, row.Count, row.AOITotal, row.CategoryPercent)
			}
			return w.Flush()
		},
	}
}
