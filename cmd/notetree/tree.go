package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
	"github.com/Velsaravanan-kafka/Second-brain/internal/session"
	"github.com/Velsaravanan-kafka/Second-brain/internal/storage"
	"github.com/Velsaravanan-kafka/Second-brain/internal/tree"
)

var ownerFlag string

func ownerID() string {
	if ownerFlag != "" {
		return ownerFlag
	}
	return cfg.Auth.LocalOwner
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print an owner's note tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		notes, err := store.ListNotes(ctx, ownerID())
		if err != nil {
			return err
		}
		printTree(cmd.OutOrStdout(), tree.BuildTree(notes).Roots(), 0)
		return nil
	},
}

func printTree(w io.Writer, nodes []*tree.Node, depth int) {
	for _, n := range nodes {
		icon := ""
		if n.Icon != nil {
			icon = *n.Icon + " "
		}
		fmt.Fprintf(w, "%s%s%s (%s)\n", strings.Repeat("  ", depth), icon, n.Title, n.ID)
		printTree(w, n.Children, depth+1)
	}
}

type exportNode struct {
	ID         string        `yaml:"id"`
	Title      string        `yaml:"title"`
	Icon       string        `yaml:"icon,omitempty"`
	Questions  []exportLabel `yaml:"questions,omitempty"`
	Important  []string      `yaml:"important,omitempty"`
	Vocabulary []exportLabel `yaml:"vocabulary,omitempty"`
	Children   []*exportNode `yaml:"children,omitempty"`
}

// exportLabel is a question with its answer or a term with its definition.
type exportLabel struct {
	Text   string `yaml:"text"`
	Detail string `yaml:"detail,omitempty"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an owner's notes and annotations as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		notes, err := store.ListNotes(ctx, ownerID())
		if err != nil {
			return err
		}
		roots := tree.BuildTree(notes).Roots()
		out := make([]*exportNode, 0, len(roots))
		for _, r := range roots {
			n, err := exportTree(ctx, store, r)
			if err != nil {
				return err
			}
			out = append(out, n)
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(out)
	},
}

func exportTree(ctx context.Context, store storage.Storage, n *tree.Node) (*exportNode, error) {
	out := &exportNode{ID: n.ID, Title: n.Title}
	if n.Icon != nil {
		out.Icon = *n.Icon
	}
	for _, kind := range models.Kinds {
		rows, err := store.ListAnnotations(ctx, ownerID(), kind, n.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range rows {
			switch v := a.(type) {
			case models.Question:
				label := exportLabel{Text: v.Question}
				if v.Answer != nil {
					label.Detail = *v.Answer
				}
				out.Questions = append(out.Questions, label)
			case models.Important:
				out.Important = append(out.Important, v.Text)
			case models.Vocabulary:
				label := exportLabel{Text: v.Text}
				if v.Definition != nil {
					label.Detail = *v.Definition
				}
				out.Vocabulary = append(out.Vocabulary, label)
			}
		}
	}
	for _, c := range n.Children {
		child, err := exportTree(ctx, store, c)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, child)
	}
	return out, nil
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Remove inline marks whose annotation no longer exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		s, err := session.New(ownerID(), store, session.WithLogger(logger))
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Open(ctx); err != nil {
			return err
		}

		total := 0
		for _, n := range s.Forest().Notes() {
			pruned, err := s.Reconcile(ctx, n.ID)
			if err != nil {
				logger.Error("Failed to reconcile note", zap.String("note_id", n.ID), zap.Error(err))
				continue
			}
			for _, m := range pruned {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %s mark %s %q\n", n.ID, m.Kind, m.ID, m.Text)
			}
			total += len(pruned)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d orphaned marks removed\n", total)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{treeCmd, exportCmd, reconcileCmd} {
		c.Flags().StringVar(&ownerFlag, "owner", "", "Owner id (defaults to auth.local_owner)")
		rootCmd.AddCommand(c)
	}
}
