package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/c2h5oh/datasize"

	"github.com/bentobox/bentobox/internal/images"
)

func cmdImages(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: bento images <list|pull|import|pack|rm> [flags]")
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return cmdImagesList(rest)
	case "pull":
		return cmdImagesPull(rest)
	case "import":
		return cmdImagesImport(rest)
	case "pack":
		return cmdImagesPack(rest)
	case "rm":
		return cmdImagesRm(rest)
	default:
		return fmt.Errorf("unknown images subcommand %q", sub)
	}
}

func cmdImagesList(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: bento images list")
	}
	m, err := newManager()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tID\tOS\tSIZE\tSOURCE_REF\tARCH")
	for _, img := range m.Images().List() {
		size, err := imageSizeBytes(m.Images(), img)
		sizeStr := "unknown"
		if err == nil {
			sizeStr = datasize.ByteSize(size).String()
		}
		shortID := img.ID
		if len(shortID) > 10 {
			shortID = shortID[:10]
		}
		osField, archField := img.OS, img.Arch
		if osField == "" {
			osField = "-"
		}
		if archField == "" {
			archField = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", img.Tag, shortID, osField, sizeStr, img.SourceRef, archField)
	}
	return w.Flush()
}

func imageSizeBytes(store *images.Store, img images.Image) (int64, error) {
	rootfs := filepath.Join(store.ImageDir(img.ID), "rootfs.img")
	fi, err := os.Stat(rootfs)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func cmdImagesPull(args []string) error {
	fs := flag.NewFlagSet("images pull", flag.ContinueOnError)
	name := fs.String("name", "", "tag to assign the pulled image")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: bento images pull <reference> [--name <tag>]")
	}

	m, err := newManager()
	if err != nil {
		return err
	}
	rec, err := m.Images().Pull(context.Background(), fs.Arg(0), *name)
	if err != nil {
		return err
	}
	fmt.Printf("pulled %s\n", rec.SourceRef)
	return nil
}

func cmdImagesImport(args []string) error {
	fs := flag.NewFlagSet("images import", flag.ContinueOnError)
	name := fs.String("name", "", "tag to assign the imported image")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: bento images import <path> [--name <tag>]")
	}

	m, err := newManager()
	if err != nil {
		return err
	}
	rec, err := m.Images().Import(context.Background(), fs.Arg(0), *name)
	if err != nil {
		return err
	}
	fmt.Printf("imported %s\n", rec.SourceRef)
	return nil
}

func cmdImagesPack(args []string) error {
	fs := flag.NewFlagSet("images pack", flag.ContinueOnError)
	image := fs.String("image", "", "path to the disk image to pack")
	out := fs.String("out", "", "output archive path (defaults to <name>.tar)")
	goos := fs.String("os", "", "guest OS annotation")
	arch := fs.String("arch", "", "guest architecture annotation")
	compression := fs.String("compression", "zstd", "layer compression: zstd or gzip")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *image == "" {
		return fmt.Errorf("usage: bento images pack <name> --image <path> --os <os> --arch <arch> [--out <path>] [--compression zstd|gzip]")
	}
	name := fs.Arg(0)

	comp := images.CompressionZstd
	if *compression == "gzip" {
		comp = images.CompressionGzip
	}

	outPath := *out
	if outPath == "" {
		outPath = name + ".tar"
	}

	if err := images.PackOCIArchive(*image, name, outPath, *goos, *arch, comp); err != nil {
		return err
	}
	fmt.Printf("packed %s\n", outPath)
	return nil
}

func cmdImagesRm(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: bento images rm <tag>")
	}
	m, err := newManager()
	if err != nil {
		return err
	}
	if err := m.Images().RemoveImage(args[0]); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", args[0])
	return nil
}
