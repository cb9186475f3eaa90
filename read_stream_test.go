/* Copyright (C) 2016-2024 Philipp Benner
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package rustynetics

/* -------------------------------------------------------------------------- */

import   "io"
import   "log"
import   "testing"

/* -------------------------------------------------------------------------- */

var testFilterLogger = log.New(io.Discard, "", 0)

func collectReads(channel ReadChannel) []Read {
  reads := []Read{}
  for read := range channel {
    reads = append(reads, read)
  }
  return reads
}

/* -------------------------------------------------------------------------- */

func TestFilterPairedEnd(t *testing.T) {

  reads := []Read{
    {Seqname: "chr1", Range: NewRange(  0, 50), Strand: '+', PairedEnd: true},
    {Seqname: "chr1", Range: NewRange(100, 150), Strand: '+'},
    {Seqname: "chr1", Range: NewRange(200, 250), Strand: '-', PairedEnd: true} }

  // veto disabled: the stream passes through unchanged
  result := collectReads(filterPairedEnd(testFilterLogger, false, readsFromSlice(reads)))
  if len(result) != 3 {
    t.Errorf("expected 3 reads, got %d", len(result))
  }
  result = collectReads(filterPairedEnd(testFilterLogger, true, readsFromSlice(reads)))
  if len(result) != 2 {
    t.Fatalf("expected 2 paired-end reads, got %d", len(result))
  }
  for _, read := range result {
    if !read.PairedEnd {
      t.Errorf("unexpected single-end read: %v", read)
    }
  }
}

func TestFilterSingleEnd(t *testing.T) {

  reads := []Read{
    {Seqname: "chr1", Range: NewRange(  0, 50), Strand: '+', PairedEnd: true},
    {Seqname: "chr1", Range: NewRange(100, 150), Strand: '+'} }

  result := collectReads(filterSingleEnd(testFilterLogger, true, readsFromSlice(reads)))
  if len(result) != 1 {
    t.Fatalf("expected 1 single-end read, got %d", len(result))
  }
  if result[0].Range.From != 100 {
    t.Errorf("invalid read: %v", result[0])
  }
}

func TestFilterPairedAsSingleEnd(t *testing.T) {

  reads := []Read{
    {Seqname: "chr1", Range: NewRange(0, 50), Strand: '+', PairedEnd: true} }

  result := collectReads(filterPairedAsSingleEnd(testFilterLogger, true, readsFromSlice(reads)))
  if len(result) != 1 {
    t.Fatalf("expected 1 read, got %d", len(result))
  }
  if result[0].PairedEnd {
    t.Error("read should be marked as single-end")
  }
}

func TestFilterDuplicates(t *testing.T) {

  reads := []Read{
    {Seqname: "chr1", Range: NewRange(  0, 50), Strand: '+'},
    {Seqname: "chr1", Range: NewRange(100, 150), Strand: '+', Duplicate: true},
    {Seqname: "chr1", Range: NewRange(200, 250), Strand: '+'} }

  result := collectReads(filterDuplicates(testFilterLogger, true, readsFromSlice(reads)))
  if len(result) != 2 {
    t.Fatalf("expected 2 reads, got %d", len(result))
  }
  for _, read := range result {
    if read.Duplicate {
      t.Errorf("unexpected duplicate read: %v", read)
    }
  }
}

func TestFilterMapQ(t *testing.T) {

  reads := []Read{
    {Seqname: "chr1", Range: NewRange(  0, 50), Strand: '+', MapQ: 10},
    {Seqname: "chr1", Range: NewRange(100, 150), Strand: '+', MapQ: 30},
    {Seqname: "chr1", Range: NewRange(200, 250), Strand: '+', MapQ: 60} }

  // a threshold of zero disables the filter
  result := collectReads(filterMapQ(testFilterLogger, 0, readsFromSlice(reads)))
  if len(result) != 3 {
    t.Errorf("expected 3 reads, got %d", len(result))
  }
  result = collectReads(filterMapQ(testFilterLogger, 30, readsFromSlice(reads)))
  if len(result) != 2 {
    t.Fatalf("expected 2 reads, got %d", len(result))
  }
  for _, read := range result {
    if read.MapQ < 30 {
      t.Errorf("unexpected low quality read: %v", read)
    }
  }
}

func TestFilterReadLength(t *testing.T) {

  reads := []Read{
    {Seqname: "chr1", Range: NewRange(  0,  30), Strand: '+'},
    {Seqname: "chr1", Range: NewRange(100, 150), Strand: '+'},
    {Seqname: "chr1", Range: NewRange(200, 280), Strand: '+'} }

  result := collectReads(filterReadLength(testFilterLogger, [2]int{40, 60}, readsFromSlice(reads)))
  if len(result) != 1 {
    t.Fatalf("expected 1 read, got %d", len(result))
  }
  if result[0].Range.Length() != 50 {
    t.Errorf("invalid read: %v", result[0])
  }
  // an upper bound of zero keeps all reads above the lower bound
  result = collectReads(filterReadLength(testFilterLogger, [2]int{40, 0}, readsFromSlice(reads)))
  if len(result) != 2 {
    t.Errorf("expected 2 reads, got %d", len(result))
  }
}

func TestFilterStrand(t *testing.T) {

  reads := []Read{
    {Seqname: "chr1", Range: NewRange(  0, 50), Strand: '+'},
    {Seqname: "chr1", Range: NewRange(100, 150), Strand: '-'},
    {Seqname: "chr1", Range: NewRange(200, 250), Strand: '-'} }

  result := collectReads(filterStrand(testFilterLogger, '-', readsFromSlice(reads)))
  if len(result) != 2 {
    t.Fatalf("expected 2 reads, got %d", len(result))
  }
  for _, read := range result {
    if read.Strand != '-' {
      t.Errorf("unexpected read: %v", read)
    }
  }
  // '*' disables the filter
  result = collectReads(filterStrand(testFilterLogger, '*', readsFromSlice(reads)))
  if len(result) != 3 {
    t.Errorf("expected 3 reads, got %d", len(result))
  }
}

func TestShiftReads(t *testing.T) {

  reads := []Read{
    {Seqname: "chr1", Range: NewRange(100, 150), Strand: '+'},
    {Seqname: "chr1", Range: NewRange(100, 150), Strand: '-'},
    {Seqname: "chr1", Range: NewRange(  5,  55), Strand: '-'} }

  result := collectReads(shiftReads(testFilterLogger, [2]int{10, -10}, readsFromSlice(reads)))
  if len(result) != 3 {
    t.Fatalf("expected 3 reads, got %d", len(result))
  }
  if result[0].Range.From != 110 || result[0].Range.To != 160 {
    t.Errorf("forward read was not shifted correctly: %v", result[0].Range)
  }
  if result[1].Range.From != 90 || result[1].Range.To != 140 {
    t.Errorf("reverse read was not shifted correctly: %v", result[1].Range)
  }
  // reads shifted below zero are clipped at the chromosome start
  if result[2].Range.From != 0 || result[2].Range.To != 50 {
    t.Errorf("read was not clipped correctly: %v", result[2].Range)
  }
}
