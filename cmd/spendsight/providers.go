package main

// Blank imports register the cost provider adapters. Each adapter's init
// adds itself to the provider registry, so importing is enough to make
// "aws", "azure", and "gcp" resolvable at account creation time.
import (
	_ "github.com/spendsight/spendsight/internal/adapter/awscost"
	_ "github.com/spendsight/spendsight/internal/adapter/azurecost"
	_ "github.com/spendsight/spendsight/internal/adapter/gcpcost"
)
