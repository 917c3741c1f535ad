// Package ptypes moves juvenile Sierra patrons who have reached adult age to
// the adult patron type paired with their juvenile type.
//
// Service runs the pairs in order against a PatronDirectory. Runs are dry by
// default and only log the patrons that would change; RunOptions.ApplyChanges
// issues the updates. CommandBuilder exposes the run and query subcommands.
package ptypes
