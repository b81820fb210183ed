package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/robofleet/config"
	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/navgraph"
)

var (
	routeGraph string
	routeK     int
)

var routeCmd = &cobra.Command{
	Use:   "route <from> <to>",
	Short: "Print the routes between two vertices",
	Args:  cobra.ExactArgs(2),
	RunE:  runRoute,
}

func init() {
	routeCmd.Flags().StringVarP(&routeGraph, "graph", "g", "", "graph file, defaults to the configured one")
	routeCmd.Flags().IntVarP(&routeK, "k", "k", 3, "number of alternative routes")
	rootCmd.AddCommand(routeCmd)
}

func parseVertex(s string) (model.VertexID, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return model.NoVertex, fmt.Errorf("vertex %q: %w", s, err)
	}
	return model.VertexID(n), nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	path := routeGraph
	if path == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Graph.Path
	}
	g, err := navgraph.Load(path)
	if err != nil {
		return err
	}
	from, err := parseVertex(args[0])
	if err != nil {
		return err
	}
	to, err := parseVertex(args[1])
	if err != nil {
		return err
	}
	if !g.HasVertex(from) || !g.HasVertex(to) {
		return fmt.Errorf("route %d -> %d: %w", from, to, navgraph.ErrInvalidVertex)
	}

	out := cmd.OutOrStdout()
	printRoute(out, g, "shortest", g.ShortestPath(from, to, nil))
	printRoute(out, g, "alternative", g.AlternativePath(from, to, nil))
	printRoute(out, g, "longest", g.LongestPath(from, to, nil))
	for i, p := range g.KAlternativePaths(from, to, routeK) {
		printRoute(out, g, fmt.Sprintf("k%d", i+1), p)
	}
	if c, ok := g.NearestChargingStation(from, nil); ok {
		_, _ = fmt.Fprintf(out, "%-12s %s\n", "charger", g.Name(c))
	}
	return nil
}

func printRoute(w io.Writer, g *navgraph.Graph, label string, path []model.VertexID) {
	if len(path) == 0 {
		_, _ = fmt.Fprintf(w, "%-12s none\n", label)
		return
	}
	names := make([]string, len(path))
	for i, v := range path {
		names[i] = g.Name(v)
	}
	_, _ = fmt.Fprintf(w, "%-12s %s (%.2f)\n", label, strings.Join(names, " -> "), g.PathLength(path))
}
