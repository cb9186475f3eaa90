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

import "bytes"
import "bufio"
import "fmt"
import "encoding/binary"
import "io"
import "os"

/* -------------------------------------------------------------------------- */

type BamSeq []byte

func (seq BamSeq) String() string {
  var buffer bytes.Buffer
  writer := bufio.NewWriter(&buffer)

  t := []byte{'=', 'A', 'C', 'M', 'G', 'R', 'S', 'V', 'T', 'W', 'Y', 'H', 'K', 'D', 'B', 'N'}

  for i := 0; i < len(seq); i++ {
    b1 := seq[i] >> 4
    b2 := seq[i] & 0xf
    fmt.Fprintf(writer, "%c", t[b1])
    fmt.Fprintf(writer, "%c", t[b2])
  }
  writer.Flush()

  return buffer.String()
}

/* -------------------------------------------------------------------------- */

type BamAuxiliary struct {
  Tag   [2]byte
  Value interface{}
}

func (aux BamAuxiliary) String() string {
  return fmt.Sprintf("%c%c:%v", aux.Tag[0], aux.Tag[1], aux.Value)
}

func (aux *BamAuxiliary) Read(reader io.Reader) error {
  var valueType byte
  // read data
  if err := binary.Read(reader, binary.LittleEndian, &aux.Tag[0]); err != nil {
    return err
  }
  if err := binary.Read(reader, binary.LittleEndian, &aux.Tag[1]); err != nil {
    return err
  }
  if err := binary.Read(reader, binary.LittleEndian, &valueType); err != nil {
    return err
  }
  // three cases:
  // 1. value is a single int, float or string
  // 2. value is an array of ints or floats
  switch valueType {
  case 'A':
    value := byte(0)
    if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
      return err
    }
    aux.Value = value
  case 'c':
    value := int8(0)
    if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
      return err
    }
    aux.Value = value
  case 'C':
    value := uint8(0)
    if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
      return err
    }
    aux.Value = value
  case 's':
    value := int16(0)
    if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
      return err
    }
    aux.Value = value
  case 'S':
    value := uint16(0)
    if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
      return err
    }
    aux.Value = value
  case 'i':
    value := int32(0)
    if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
      return err
    }
    aux.Value = value
  case 'I':
    value := uint32(0)
    if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
      return err
    }
    aux.Value = value
  case 'f':
    value := float32(0)
    if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
      return err
    }
    aux.Value = value
  case 'Z':
    var b byte
    buffer := bytes.Buffer{}
    for {
      if err := binary.Read(reader, binary.LittleEndian, &b); err != nil {
        return err
      }
      if b == 0 {
        break
      }
      buffer.WriteByte(b)
    }
    aux.Value = buffer.String()
  case 'H':
    var b byte
    buffer := bytes.Buffer{}
    for {
      if err := binary.Read(reader, binary.LittleEndian, &b); err != nil {
        return err
      }
      if b == 0 {
        break
      }
      fmt.Fprintf(&buffer, "%X", b)
    }
    aux.Value = buffer.String()
  case 'B':
    var t byte
    var k int32
    if err := binary.Read(reader, binary.LittleEndian, &t); err != nil {
      return err
    }
    if err := binary.Read(reader, binary.LittleEndian, &k); err != nil {
      return err
    }
    switch t {
    case 'c':
      value := make([]int8, k)
      if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
        return err
      }
      aux.Value = value
    case 'C':
      value := make([]uint8, k)
      if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
        return err
      }
      aux.Value = value
    case 's':
      value := make([]int16, k)
      if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
        return err
      }
      aux.Value = value
    case 'S':
      value := make([]uint16, k)
      if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
        return err
      }
      aux.Value = value
    case 'i':
      value := make([]int32, k)
      if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
        return err
      }
      aux.Value = value
    case 'I':
      value := make([]uint32, k)
      if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
        return err
      }
      aux.Value = value
    case 'f':
      value := make([]float32, k)
      if err := binary.Read(reader, binary.LittleEndian, &value); err != nil {
        return err
      }
      aux.Value = value
    default:
      return fmt.Errorf("invalid auxiliary array value type `%c'", t)
    }
  default:
    return fmt.Errorf("invalid auxiliary value type `%c'", valueType)
  }
  return nil
}

/* -------------------------------------------------------------------------- */

type BamFlag uint16

func (flag BamFlag) bit(i uint) bool {
  return (flag >> i) & 1 == 1
}

func (flag BamFlag) ReadPaired() bool {
  return flag.bit(0)
}

func (flag BamFlag) ReadMappedProperPaired() bool {
  return flag.bit(1)
}

func (flag BamFlag) Unmapped() bool {
  return flag.bit(2)
}

func (flag BamFlag) MateUnmapped() bool {
  return flag.bit(3)
}

func (flag BamFlag) ReverseStrand() bool {
  return flag.bit(4)
}

func (flag BamFlag) MateReverseStrand() bool {
  return flag.bit(5)
}

func (flag BamFlag) FirstInPair() bool {
  return flag.bit(6)
}

func (flag BamFlag) SecondInPair() bool {
  return flag.bit(7)
}

func (flag BamFlag) SecondaryAlignment() bool {
  return flag.bit(8)
}

func (flag BamFlag) NotPassingFilters() bool {
  return flag.bit(9)
}

func (flag BamFlag) Duplicate() bool {
  return flag.bit(10)
}

/* -------------------------------------------------------------------------- */

type BamCigar []uint32

func (cigar BamCigar) String() string {
  buffer := new(bytes.Buffer)

  cigarOps := "MIDNSHP=X"

  for i := 0; i < len(cigar); i++ {
    n := cigar[i] >> 4
    t := cigar[i] & 0xf
    if int(t) < len(cigarOps) {
      fmt.Fprintf(buffer, "%d%c", n, cigarOps[t])
    } else {
      fmt.Fprintf(buffer, "%d%c", n, '?')
    }
  }
  return buffer.String()
}

// Number of reference bases covered by the alignment, i.e. the sum of
// all match, deletion, and skip operations.
func (cigar BamCigar) AlignedLength() int {
  length := 0
  for i := 0; i < len(cigar); i++ {
    n := int(cigar[i] >> 4)
    t := int(cigar[i] & 0xf)
    switch t {
    case 0, 2, 3, 7, 8: // M, D, N, =, X
      length += n
    }
  }
  return length
}

/* -------------------------------------------------------------------------- */

type BamHeader struct {
  TextLength int32
  Text       string
  NRef       int32
}

type BamBlock struct {
  RefID        int32
  Position     int32
  Bin          uint16
  MapQ         byte
  RNLength     byte
  Flag         BamFlag
  NCigarOp     uint16
  LSeq         int32
  NextRefID    int32
  NextPosition int32
  TLength      int32
  ReadName     string
  Cigar        BamCigar
  Seq          BamSeq
  Qual         []byte
  Auxiliary    []BamAuxiliary
}

type BamReaderType1 struct {
  Block BamBlock
  Error error
}

type BamReaderType2 struct {
  Block1 BamBlock
  Block2 BamBlock
  Error  error
}

/* -------------------------------------------------------------------------- */

type BamReaderOptions struct {
  ReadName      bool
  ReadCigar     bool
  ReadSequence  bool
  ReadAuxiliary bool
  ReadQual      bool
}

/* -------------------------------------------------------------------------- */

type BamReader struct {
  Options BamReaderOptions
  Header  BamHeader
  Genome  Genome
  decoder *BgzfReader
}

func NewBamReader(reader io.Reader, args... interface{}) (*BamReader, error) {
  bamReader := new(BamReader)
  magic     := make([]byte, 4)
  genome    := Genome{}
  // temporary space for reading bytes
  var tmp []byte

  // parse options
  for _, arg := range args {
    switch a := arg.(type) {
    case BamReaderOptions:
      bamReader.Options = a
    default:
      return nil, fmt.Errorf("NewBamReader(): invalid arguments")
    }
  }
  if tmp, err := NewBgzfReader(reader); err != nil {
    return nil, err
  } else {
    bamReader.decoder = tmp
  }
  if _, err := io.ReadFull(bamReader.decoder, magic); err != nil {
    return nil, err
  }
  if string(magic) != "BAM\001" {
    return nil, fmt.Errorf("not a BAM file: %w", ErrBadMagic)
  }
  if err := binary.Read(bamReader.decoder, binary.LittleEndian, &bamReader.Header.TextLength); err != nil {
    return nil, err
  } else {
    tmp = make([]byte, bamReader.Header.TextLength)
  }
  if _, err := io.ReadFull(bamReader.decoder, tmp); err != nil {
    return nil, err
  } else {
    bamReader.Header.Text = string(tmp)
  }
  if err := binary.Read(bamReader.decoder, binary.LittleEndian, &bamReader.Header.NRef); err != nil {
    return nil, err
  }
  for i := 0; i < int(bamReader.Header.NRef); i++ {
    lengthName := int32(0)
    lengthSeq  := int32(0)
    // read length of sequence name
    if err := binary.Read(bamReader.decoder, binary.LittleEndian, &lengthName); err != nil {
      return nil, err
    }
    // allocate memory for reading the name
    tmp = make([]byte, lengthName)
    // read sequence name
    if _, err := io.ReadFull(bamReader.decoder, tmp); err != nil {
      return nil, err
    }
    // read sequence length
    if err := binary.Read(bamReader.decoder, binary.LittleEndian, &lengthSeq); err != nil {
      return nil, err
    }
    // the name is null terminated
    if _, err := genome.AddSequence(string(bytes.TrimRight(tmp, "\x00")), int(lengthSeq)); err != nil {
      return nil, err
    }
  }
  bamReader.Genome = genome

  return bamReader, nil
}

/* -------------------------------------------------------------------------- */

func (reader *BamReader) readBlock(block *BamBlock) error {
  var blockSize int32
  var flagNc    uint32
  var binMqNl   uint32

  // read block size
  if err := binary.Read(reader.decoder, binary.LittleEndian, &blockSize); err != nil {
    return err
  }
  if blockSize < 32 {
    return fmt.Errorf("invalid block size `%d'", blockSize)
  }
  // read the full block into memory to simplify parsing of the
  // variable length fields
  buffer := make([]byte, blockSize)
  if _, err := io.ReadFull(reader.decoder, buffer); err != nil {
    if err == io.EOF || err == io.ErrUnexpectedEOF {
      return fmt.Errorf("reading bam block failed: %w", ErrTruncatedData)
    }
    return err
  }
  data := bytes.NewReader(buffer)

  if err := binary.Read(data, binary.LittleEndian, &block.RefID); err != nil {
    return err
  }
  if err := binary.Read(data, binary.LittleEndian, &block.Position); err != nil {
    return err
  }
  if err := binary.Read(data, binary.LittleEndian, &binMqNl); err != nil {
    return err
  }
  block.Bin      = uint16((binMqNl >> 16) & 0xffff)
  block.MapQ     = byte  ((binMqNl >>  8) & 0xff)
  block.RNLength = byte  ((binMqNl >>  0) & 0xff)
  if err := binary.Read(data, binary.LittleEndian, &flagNc); err != nil {
    return err
  }
  // get Flag and NCigarOp from FlagNc
  block.Flag     = BamFlag(flagNc >> 16)
  block.NCigarOp = uint16(flagNc & 0xffff)
  if err := binary.Read(data, binary.LittleEndian, &block.LSeq); err != nil {
    return err
  }
  if err := binary.Read(data, binary.LittleEndian, &block.NextRefID); err != nil {
    return err
  }
  if err := binary.Read(data, binary.LittleEndian, &block.NextPosition); err != nil {
    return err
  }
  if err := binary.Read(data, binary.LittleEndian, &block.TLength); err != nil {
    return err
  }
  // parse the read name
  name := bytes.Buffer{}
  for {
    b, err := data.ReadByte()
    if err != nil {
      return err
    }
    if b == 0 {
      break
    }
    name.WriteByte(b)
  }
  if reader.Options.ReadName {
    block.ReadName = name.String()
  } else {
    block.ReadName = ""
  }
  // parse cigar block
  if reader.Options.ReadCigar {
    block.Cigar = make(BamCigar, block.NCigarOp)
    if err := binary.Read(data, binary.LittleEndian, &block.Cigar); err != nil {
      return err
    }
  } else {
    block.Cigar = nil
    if _, err := data.Seek(int64(4*block.NCigarOp), io.SeekCurrent); err != nil {
      return err
    }
  }
  // parse seq
  if reader.Options.ReadSequence {
    block.Seq = make(BamSeq, (block.LSeq+1)/2)
    if err := binary.Read(data, binary.LittleEndian, &block.Seq); err != nil {
      return err
    }
  } else {
    block.Seq = nil
    if _, err := data.Seek(int64((block.LSeq+1)/2), io.SeekCurrent); err != nil {
      return err
    }
  }
  // parse qual block
  if reader.Options.ReadQual {
    block.Qual = make([]byte, block.LSeq)
    if err := binary.Read(data, binary.LittleEndian, &block.Qual); err != nil {
      return err
    }
  } else {
    block.Qual = nil
    if _, err := data.Seek(int64(block.LSeq), io.SeekCurrent); err != nil {
      return err
    }
  }
  // read auxiliary data
  block.Auxiliary = nil
  if reader.Options.ReadAuxiliary {
    for data.Len() > 0 {
      aux := BamAuxiliary{}
      if err := aux.Read(data); err != nil {
        return err
      }
      block.Auxiliary = append(block.Auxiliary, aux)
    }
  }
  return nil
}

// Stream all alignment records of the file. The last element of the
// stream carries the error if the file could not be read to the end.
func (reader *BamReader) ReadSingleEnd() <- chan BamReaderType1 {
  channel := make(chan BamReaderType1, 100)
  go func() {
    defer close(channel)
    for {
      r := BamReaderType1{}
      if err := reader.readBlock(&r.Block); err != nil {
        if err != io.EOF {
          r.Error = err
          channel <- r
        }
        return
      }
      channel <- r
    }
  }()
  return channel
}

// Stream pairs of alignment records. Mates are joined by read name;
// records without a mate in the file are dropped.
func (reader *BamReader) ReadPairedEnd() <- chan BamReaderType2 {
  channel := make(chan BamReaderType2, 100)
  // joining pairs requires read names
  reader.Options.ReadName = true
  go func() {
    defer close(channel)
    cache := make(map[string]BamBlock)
    for r := range reader.ReadSingleEnd() {
      if r.Error != nil {
        channel <- BamReaderType2{Error: r.Error}
        return
      }
      block1 := r.Block
      if !block1.Flag.ReadPaired() {
        continue
      }
      if block2, ok := cache[block1.ReadName]; ok {
        delete(cache, block1.ReadName)
        if block1.Position < block2.Position {
          channel <- BamReaderType2{Block1: block1, Block2: block2}
        } else {
          channel <- BamReaderType2{Block1: block2, Block2: block1}
        }
      } else {
        cache[block1.ReadName] = block1
      }
    }
  }()
  return channel
}

// Stream reads with simplified information. If joinPairs is true,
// paired-end reads are joined into a single read covering the full
// template, from the leftmost to the rightmost aligned position of the
// two mates. Otherwise every mapped record yields one read. If
// pairedEndStrandSpecific is true, the strand of a joined pair is
// determined by the second mate in sequencing order.
func (reader *BamReader) ReadSimple(joinPairs, pairedEndStrandSpecific bool) ReadChannel {
  channel := make(chan Read, 100)
  // both the read name and the cigar string are required
  reader.Options.ReadName  = true
  reader.Options.ReadCigar = true
  go func() {
    defer close(channel)
    cache := make(map[string]BamBlock)
    for r := range reader.ReadSingleEnd() {
      if r.Error != nil {
        channel <- Read{Error: r.Error}
        return
      }
      block1 := r.Block
      if block1.Flag.ReadPaired() && joinPairs {
        if block1.Flag.Unmapped() || !block1.Flag.ReadMappedProperPaired() {
          continue
        }
        block2, ok := cache[block1.ReadName]
        if !ok {
          cache[block1.ReadName] = block1
          continue
        }
        delete(cache, block1.ReadName)
        if block2.Position < block1.Position {
          block1, block2 = block2, block1
        }
        if int(block1.RefID) < 0 || int(block1.RefID) >= reader.Genome.Length() {
          continue
        }
        alen := block2.Cigar.AlignedLength()
        if alen == 0 {
          alen = int(block2.LSeq)
        }
        read := Read{}
        read.Seqname   = reader.Genome.Seqnames[block1.RefID]
        read.Range     = NewRange(int(block1.Position), int(block2.Position)+alen)
        read.Strand    = '*'
        read.MapQ      = iMin(int(block1.MapQ), int(block2.MapQ))
        read.Duplicate = block1.Flag.Duplicate() || block2.Flag.Duplicate()
        read.PairedEnd = true
        if pairedEndStrandSpecific {
          if block1.Flag.SecondInPair() {
            if block1.Flag.ReverseStrand() {
              read.Strand = '-'
            } else {
              read.Strand = '+'
            }
          } else {
            if block2.Flag.ReverseStrand() {
              read.Strand = '-'
            } else {
              read.Strand = '+'
            }
          }
        }
        channel <- read
      } else
      if !block1.Flag.Unmapped() {
        if int(block1.RefID) < 0 || int(block1.RefID) >= reader.Genome.Length() {
          continue
        }
        alen := block1.Cigar.AlignedLength()
        if alen == 0 {
          alen = int(block1.LSeq)
        }
        read := Read{}
        read.Seqname   = reader.Genome.Seqnames[block1.RefID]
        read.Range     = NewRange(int(block1.Position), int(block1.Position)+alen)
        read.MapQ      = int(block1.MapQ)
        read.Duplicate = block1.Flag.Duplicate()
        read.PairedEnd = block1.Flag.ReadPaired()
        if block1.Flag.ReverseStrand() {
          read.Strand = '-'
        } else {
          read.Strand = '+'
        }
        channel <- read
      }
    }
  }()
  return channel
}

/* -------------------------------------------------------------------------- */

type BamFile struct {
  BamReader
  file *os.File
}

func OpenBamFile(filename string, args... interface{}) (*BamFile, error) {
  f, err := os.Open(filename)
  if err != nil {
    return nil, err
  }
  reader, err := NewBamReader(f, args...)
  if err != nil {
    f.Close()
    return nil, err
  }
  bam := BamFile{}
  bam.BamReader = *reader
  bam.file      = f
  return &bam, nil
}

func (bam *BamFile) Close() error {
  return bam.file.Close()
}

/* utility
 * -------------------------------------------------------------------------- */

// Read the genome, i.e. the chromosome names and lengths, from the
// header of a bam file.
func BamImportGenome(filename string) (Genome, error) {
  bam, err := OpenBamFile(filename)
  if err != nil {
    return Genome{}, err
  }
  defer bam.Close()

  return bam.Genome, nil
}
