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

// Methods for reading and writing Big Binary Indexed files such as bigWig
// and bigBed

/* -------------------------------------------------------------------------- */

import "bytes"
import "compress/zlib"
import "errors"
import "fmt"
import "math"
import "encoding/binary"
import "io"

/* -------------------------------------------------------------------------- */

const CIRTREE_MAGIC = 0x78ca8c91
const     IDX_MAGIC = 0x2468ace0

const BbiMaxZoomLevels = 10
const BbiResIncrement  =  4

const BbiTypeBedGraph = 1
const BbiTypeVariable = 2
const BbiTypeFixed    = 3

/* -------------------------------------------------------------------------- */

var ErrBadMagic           = errors.New("bad magic number")
var ErrUnsupportedVersion = errors.New("unsupported file version")
var ErrTruncatedData      = errors.New("truncated data")

/* -------------------------------------------------------------------------- */

func fileReadAt(reader io.ReadSeeker, order binary.ByteOrder, offset int64, data interface{}) error {
  currentPosition, _ := reader.Seek(0, 1)
  if _, err := reader.Seek(offset, 0); err != nil {
    return err
  }
  if err := binary.Read(reader, order, data); err != nil {
    if err == io.EOF || err == io.ErrUnexpectedEOF {
      return fmt.Errorf("reading %d bytes at offset %d failed: %w", binary.Size(data), offset, ErrTruncatedData)
    }
    return err
  }
  if _, err := reader.Seek(currentPosition, 0); err != nil {
    return err
  }
  return nil
}

func fileWriteAt(writer io.WriteSeeker, order binary.ByteOrder, offset int64, data interface{}) error {
  currentPosition, _ := writer.Seek(0, 1)
  if _, err := writer.Seek(offset, 0); err != nil {
    return err
  }
  if err := binary.Write(writer, order, data); err != nil {
    return err
  }
  if _, err := writer.Seek(currentPosition, 0); err != nil {
    return err
  }
  return nil
}

func uncompressSlice(data []byte) ([]byte, error) {
  b := bytes.NewReader(data)
  z, err := zlib.NewReader(b)
  if err != nil {
    return nil, err
  }
  defer z.Close()

  return io.ReadAll(z)
}

func compressSlice(data []byte) ([]byte, error) {
  var b bytes.Buffer
  z, err := zlib.NewWriterLevel(&b, zlib.BestCompression)
  if err != nil {
    panic(err)
  }
  _, err  = z.Write(data)
  if err != nil {
    return nil, err
  }
  z.Close()

  return b.Bytes(), nil
}

/* summary statistics
 * -------------------------------------------------------------------------- */

type BbiSummaryStatistics struct {
  Valid      float64
  Min        float64
  Max        float64
  Sum        float64
  SumSquares float64
}

func (obj *BbiSummaryStatistics) Reset() {
  obj.Valid      = 0.0
  obj.Min        = math.Inf( 1)
  obj.Max        = math.Inf(-1)
  obj.Sum        = 0.0
  obj.SumSquares = 0.0
}

func (obj *BbiSummaryStatistics) AddValue(x float64) {
  if math.IsNaN(x) {
    return
  }
  obj.Valid      += 1.0
  obj.Min         = math.Min(obj.Min, x)
  obj.Max         = math.Max(obj.Max, x)
  obj.Sum        += x
  obj.SumSquares += x*x
}

func (obj *BbiSummaryStatistics) Add(x BbiSummaryStatistics) {
  obj.Valid      += x.Valid
  obj.Min         = math.Min(obj.Min, x.Min)
  obj.Max         = math.Max(obj.Max, x.Max)
  obj.Sum        += x.Sum
  obj.SumSquares += x.SumSquares
}

// Add the statistics of x scaled by the fraction f of x that overlaps
// the target bin. Valid, Sum and SumSquares are scaled by f, Min and Max
// are merged unscaled. This is how zoomed summaries are merged into
// query bins.
func (obj *BbiSummaryStatistics) AddScaled(x BbiSummaryStatistics, f float64) {
  obj.Valid      += f*x.Valid
  obj.Min         = math.Min(obj.Min, x.Min)
  obj.Max         = math.Max(obj.Max, x.Max)
  obj.Sum        += f*x.Sum
  obj.SumSquares += f*x.SumSquares
}

/* -------------------------------------------------------------------------- */

type BbiSummaryRecord struct {
  ChromId int
  From    int
  To      int
  BbiSummaryStatistics
}

func NewBbiSummaryRecord() BbiSummaryRecord {
  record := BbiSummaryRecord{}
  record.Reset()
  return record
}

func (record *BbiSummaryRecord) Reset() {
  record.ChromId = -1
  record.From    =  0
  record.To      =  0
  record.BbiSummaryStatistics.Reset()
}

func (record *BbiSummaryRecord) AddRecord(x BbiSummaryRecord) {
  if record.ChromId == -1 {
    record.ChromId = x.ChromId
    record.From    = x.From
    record.To      = x.To
  }
  if record.To < x.From {
    // fill gap with zeros
    record.Valid += float64(x.From - record.To)
    if record.Min > 0.0 {
      record.Min = 0.0
    }
    if record.Max < 0.0 {
      record.Max = 0.0
    }
  }
  record.To = x.To
  record.BbiSummaryStatistics.Add(x.BbiSummaryStatistics)
}

/* zoom records
 * -------------------------------------------------------------------------- */

type BbiZoomRecord struct {
  ChromId    uint32
  Start      uint32
  End        uint32
  Valid      uint32
  Min        float32
  Max        float32
  Sum        float32
  SumSquares float32
}

func (record *BbiZoomRecord) AddValue(x float64, n int) {
  if math.IsNaN(x) {
    return
  }
  if math.IsNaN(float64(record.Min)) || record.Min > float32(x) {
    record.Min = float32(x)
  }
  if math.IsNaN(float64(record.Max)) || record.Max < float32(x) {
    record.Max = float32(x)
  }
  record.Valid      += uint32(n)
  record.Sum        += float32(x)*float32(n)
  record.SumSquares += float32(x*x)*float32(n)
}

func (record *BbiZoomRecord) Read(reader io.Reader, order binary.ByteOrder) error {
  if err := binary.Read(reader, order, &record.ChromId); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &record.Start); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &record.End); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &record.Valid); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &record.Min); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &record.Max); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &record.Sum); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &record.SumSquares); err != nil {
    return err
  }
  return nil
}

func (record BbiZoomRecord) Write(writer io.Writer, order binary.ByteOrder) error {
  if err := binary.Write(writer, order, record.ChromId); err != nil {
    return err
  }
  if err := binary.Write(writer, order, record.Start); err != nil {
    return err
  }
  if err := binary.Write(writer, order, record.End); err != nil {
    return err
  }
  if err := binary.Write(writer, order, record.Valid); err != nil {
    return err
  }
  if err := binary.Write(writer, order, record.Min); err != nil {
    return err
  }
  if err := binary.Write(writer, order, record.Max); err != nil {
    return err
  }
  if err := binary.Write(writer, order, record.Sum); err != nil {
    return err
  }
  if err := binary.Write(writer, order, record.SumSquares); err != nil {
    return err
  }
  return nil
}

/* data block header
 * -------------------------------------------------------------------------- */

type BbiDataHeader struct {
  ChromId   uint32
  Start     uint32
  End       uint32
  Step      uint32
  Span      uint32
  Type      byte
  Reserved  byte
  ItemCount uint16
}

func (header *BbiDataHeader) ReadBuffer(buffer []byte, order binary.ByteOrder) {
  header.ChromId   = order.Uint32(buffer[ 0: 4])
  header.Start     = order.Uint32(buffer[ 4: 8])
  header.End       = order.Uint32(buffer[ 8:12])
  header.Step      = order.Uint32(buffer[12:16])
  header.Span      = order.Uint32(buffer[16:20])
  header.Type      = buffer[20]
  header.Reserved  = buffer[21]
  header.ItemCount = order.Uint16(buffer[22:24])
}

func (header *BbiDataHeader) WriteBuffer(buffer []byte, order binary.ByteOrder) {
  order.PutUint32(buffer[ 0: 4], header.ChromId)
  order.PutUint32(buffer[ 4: 8], header.Start)
  order.PutUint32(buffer[ 8:12], header.End)
  order.PutUint32(buffer[12:16], header.Step)
  order.PutUint32(buffer[16:20], header.Span)
  buffer[20] = header.Type
  buffer[21] = header.Reserved
  order.PutUint16(buffer[22:24], header.ItemCount)
}

/* block decoders
 * -------------------------------------------------------------------------- */

type BbiBlockDecoderType struct {
  BbiSummaryRecord
  DataType byte
}

type BbiBlockDecoderIterator interface {
  Get () *BbiBlockDecoderType
  Ok  () bool
  Next()
}

/* -------------------------------------------------------------------------- */

// Decoder for raw data blocks of type bedGraph, variable step, and fixed
// step. Each decoded record carries per-base summary statistics, i.e.
// a record of span s and value v contributes s valid bases and s*v to
// the sum.
type BbiRawBlockDecoder struct {
  Header BbiDataHeader
  Buffer []byte
  order  binary.ByteOrder
}

type BbiRawBlockDecoderIterator struct {
  *BbiRawBlockDecoder
  i      int
  record *BbiBlockDecoderType
  tmp    BbiBlockDecoderType
}

func NewBbiRawBlockDecoder(buffer []byte, order binary.ByteOrder) (*BbiRawBlockDecoder, error) {
  if len(buffer) < 24 {
    return nil, fmt.Errorf("block length is shorter than 24 bytes")
  }
  decoder := BbiRawBlockDecoder{}
  decoder.order = order
  // parse header
  decoder.Header.ReadBuffer(buffer, order)
  // crop header from buffer
  decoder.Buffer = buffer[24:]

  switch decoder.Header.Type {
  default:
    return nil, fmt.Errorf("unsupported block type")
  case BbiTypeBedGraph:
    if len(decoder.Buffer) % 12 != 0 {
      return nil, fmt.Errorf("bedGraph data block has invalid length")
    }
  case BbiTypeVariable:
    if len(decoder.Buffer) % 8 != 0 {
      return nil, fmt.Errorf("variable step data block has invalid length")
    }
  case BbiTypeFixed:
    if len(decoder.Buffer) % 4 != 0 {
      return nil, fmt.Errorf("fixed step data block has invalid length")
    }
  }
  return &decoder, nil
}

func (decoder *BbiRawBlockDecoder) fillRecord(record *BbiBlockDecoderType, from, to int, value float64) {
  span := to - from
  record.ChromId    = int(decoder.Header.ChromId)
  record.From       = from
  record.To         = to
  record.Valid      = float64(span)
  record.Min        = value
  record.Max        = value
  record.Sum        = value*float64(span)
  record.SumSquares = value*value*float64(span)
  record.DataType   = decoder.Header.Type
}

func (decoder *BbiRawBlockDecoder) readFixed(record *BbiBlockDecoderType, i int) {
  from  := int(decoder.Header.Start + uint32(i/4)*decoder.Header.Step)
  value := float64(math.Float32frombits(decoder.order.Uint32(decoder.Buffer[i:i+4])))
  decoder.fillRecord(record, from, from+int(decoder.Header.Span), value)
}

func (decoder *BbiRawBlockDecoder) readVariable(record *BbiBlockDecoderType, i int) {
  from  := int(decoder.order.Uint32(decoder.Buffer[i:i+4]))
  value := float64(math.Float32frombits(decoder.order.Uint32(decoder.Buffer[i+4:i+8])))
  decoder.fillRecord(record, from, from+int(decoder.Header.Span), value)
}

func (decoder *BbiRawBlockDecoder) readBedGraph(record *BbiBlockDecoderType, i int) {
  from  := int(decoder.order.Uint32(decoder.Buffer[i+0:i+4]))
  to    := int(decoder.order.Uint32(decoder.Buffer[i+4:i+8]))
  value := float64(math.Float32frombits(decoder.order.Uint32(decoder.Buffer[i+8:i+12])))
  decoder.fillRecord(record, from, to, value)
}

func (decoder *BbiRawBlockDecoder) Decode() BbiBlockDecoderIterator {
  it := BbiRawBlockDecoderIterator{}
  it.BbiRawBlockDecoder = decoder
  it.i = 0
  it.Next()
  return &it
}

func (it *BbiRawBlockDecoderIterator) Get() *BbiBlockDecoderType {
  return it.record
}

func (it *BbiRawBlockDecoderIterator) Ok() bool {
  return it.record != nil
}

func (it *BbiRawBlockDecoderIterator) Next() {
  if it.i >= len(it.Buffer) {
    it.record = nil
    return
  }
  switch it.Header.Type {
  case BbiTypeBedGraph:
    it.readBedGraph(&it.tmp, it.i)
    it.i += 12
  case BbiTypeVariable:
    it.readVariable(&it.tmp, it.i)
    it.i += 8
  case BbiTypeFixed:
    it.readFixed(&it.tmp, it.i)
    it.i += 4
  }
  it.record = &it.tmp
}

/* -------------------------------------------------------------------------- */

// Decoder for zoomed data blocks, which are plain arrays of 32 byte
// summary records.
type BbiZoomBlockDecoder struct {
  Buffer []byte
  order  binary.ByteOrder
}

type BbiZoomBlockDecoderIterator struct {
  *BbiZoomBlockDecoder
  i      int
  record *BbiBlockDecoderType
  tmp    BbiBlockDecoderType
}

func NewBbiZoomBlockDecoder(buffer []byte, order binary.ByteOrder) (*BbiZoomBlockDecoder, error) {
  if len(buffer) % 32 != 0 {
    return nil, fmt.Errorf("zoom data block has invalid length")
  }
  return &BbiZoomBlockDecoder{buffer, order}, nil
}

func (decoder *BbiZoomBlockDecoder) Decode() BbiBlockDecoderIterator {
  it := BbiZoomBlockDecoderIterator{}
  it.BbiZoomBlockDecoder = decoder
  it.i = 0
  it.Next()
  return &it
}

func (it *BbiZoomBlockDecoderIterator) Get() *BbiBlockDecoderType {
  return it.record
}

func (it *BbiZoomBlockDecoderIterator) Ok() bool {
  return it.record != nil
}

func (it *BbiZoomBlockDecoderIterator) Next() {
  if it.i >= len(it.Buffer) {
    it.record = nil
    return
  }
  t := BbiZoomRecord{}
  t.Read(bytes.NewReader(it.Buffer[it.i:it.i+32]), it.order)
  it.tmp.ChromId    = int(t.ChromId)
  it.tmp.From       = int(t.Start)
  it.tmp.To         = int(t.End)
  it.tmp.Valid      = float64(t.Valid)
  it.tmp.Min        = float64(t.Min)
  it.tmp.Max        = float64(t.Max)
  it.tmp.Sum        = float64(t.Sum)
  it.tmp.SumSquares = float64(t.SumSquares)
  it.tmp.DataType   = BbiTypeBedGraph
  it.i   += 32
  it.record = &it.tmp
}

/* block encoders
 * -------------------------------------------------------------------------- */

type BbiBlockEncoderType struct {
  From  int
  To    int
  Block []byte
}

type BbiBlockEncoder interface {
  Encode(chromId int, sequence []float64, binSize int) <- chan BbiBlockEncoderType
}

/* -------------------------------------------------------------------------- */

// Encoder for raw data blocks. If fixedStep is true, values are packed
// into fixed step blocks, split whenever a value is missing (NaN) or the
// block is full. Otherwise only valid non-zero values are stored in
// variable step blocks.
type BbiRawBlockEncoder struct {
  ItemsPerSlot int
  fixedStep    bool
  order        binary.ByteOrder
}

func NewBbiRawBlockEncoder(itemsPerSlot int, fixedStep bool, order binary.ByteOrder) (*BbiRawBlockEncoder, error) {
  if itemsPerSlot <= 0 {
    return nil, fmt.Errorf("invalid items per slot `%d'", itemsPerSlot)
  }
  // ItemCount has only 16 bits
  if itemsPerSlot > int(^uint16(0)) {
    return nil, fmt.Errorf("items per slot `%d' is too large", itemsPerSlot)
  }
  return &BbiRawBlockEncoder{itemsPerSlot, fixedStep, order}, nil
}

func (encoder *BbiRawBlockEncoder) encodeFixed(channel chan BbiBlockEncoderType, chromId int, sequence []float64, binSize int) {
  tmp := make([]byte, 4)
  for i := 0; i < len(sequence); {
    // skip NaN values
    if math.IsNaN(sequence[i]) {
      i++
      continue
    }
    header := BbiDataHeader{}
    header.ChromId = uint32(chromId)
    header.Start   = uint32( i*binSize)
    header.Step    = uint32(binSize)
    header.Span    = uint32(binSize)
    header.Type    = BbiTypeFixed
    buffer := bytes.Buffer{}
    for ; i < len(sequence) && int(header.ItemCount) < encoder.ItemsPerSlot; i++ {
      if math.IsNaN(sequence[i]) {
        break
      }
      encoder.order.PutUint32(tmp, math.Float32bits(float32(sequence[i])))
      buffer.Write(tmp)
      header.ItemCount++
    }
    header.End = header.Start + uint32(header.ItemCount)*header.Step
    block := make([]byte, 24)
    header.WriteBuffer(block, encoder.order)
    block = append(block, buffer.Bytes()...)
    channel <- BbiBlockEncoderType{int(header.Start), int(header.End), block}
  }
}

func (encoder *BbiRawBlockEncoder) encodeVariable(channel chan BbiBlockEncoderType, chromId int, sequence []float64, binSize int) {
  tmp := make([]byte, 8)
  for i := 0; i < len(sequence); {
    // skip invalid values
    if math.IsNaN(sequence[i]) || sequence[i] == 0.0 {
      i++
      continue
    }
    header := BbiDataHeader{}
    header.ChromId = uint32(chromId)
    header.Start   = uint32( i*binSize)
    header.End     = uint32( i*binSize)
    header.Step    = uint32(binSize)
    header.Span    = uint32(binSize)
    header.Type    = BbiTypeVariable
    buffer := bytes.Buffer{}
    for ; i < len(sequence) && int(header.ItemCount) < encoder.ItemsPerSlot; i++ {
      if math.IsNaN(sequence[i]) || sequence[i] == 0.0 {
        continue
      }
      encoder.order.PutUint32(tmp[0:4], uint32(i*binSize))
      encoder.order.PutUint32(tmp[4:8], math.Float32bits(float32(sequence[i])))
      buffer.Write(tmp)
      header.ItemCount++
      header.End = uint32((i+1)*binSize)
    }
    block := make([]byte, 24)
    header.WriteBuffer(block, encoder.order)
    block = append(block, buffer.Bytes()...)
    channel <- BbiBlockEncoderType{int(header.Start), int(header.End), block}
  }
}

func (encoder *BbiRawBlockEncoder) Encode(chromId int, sequence []float64, binSize int) <- chan BbiBlockEncoderType {
  channel := make(chan BbiBlockEncoderType, 2)
  go func() {
    if encoder.fixedStep {
      encoder.encodeFixed(channel, chromId, sequence, binSize)
    } else {
      encoder.encodeVariable(channel, chromId, sequence, binSize)
    }
    close(channel)
  }()
  return channel
}

/* -------------------------------------------------------------------------- */

// Encoder for zoomed data blocks. The sequence is partitioned into
// windows of reductionLevel bases and one summary record is emitted for
// every window with at least one valid value.
type BbiZoomBlockEncoder struct {
  ItemsPerSlot   int
  ReductionLevel int
  order          binary.ByteOrder
}

func NewBbiZoomBlockEncoder(itemsPerSlot, reductionLevel int, order binary.ByteOrder) (*BbiZoomBlockEncoder, error) {
  if itemsPerSlot <= 0 {
    return nil, fmt.Errorf("invalid items per slot `%d'", itemsPerSlot)
  }
  if reductionLevel <= 0 {
    return nil, fmt.Errorf("invalid reduction level `%d'", reductionLevel)
  }
  return &BbiZoomBlockEncoder{itemsPerSlot, reductionLevel, order}, nil
}

func (encoder *BbiZoomBlockEncoder) Encode(chromId int, sequence []float64, binSize int) <- chan BbiBlockEncoderType {
  channel := make(chan BbiBlockEncoderType, 2)
  go func() {
    defer close(channel)

    r := encoder.ReductionLevel
    n := len(sequence)*binSize

    buffer := bytes.Buffer{}
    count  := 0
    from   := -1
    to     := -1

    flush := func() {
      if count > 0 {
        block := make([]byte, buffer.Len())
        copy(block, buffer.Bytes())
        channel <- BbiBlockEncoderType{from, to, block}
      }
      buffer.Reset()
      count = 0
      from  = -1
      to    = -1
    }
    // loop over zoom windows
    for start := 0; start < n; start += r {
      end := iMin(start+r, n)
      record := BbiZoomRecord{
        ChromId: uint32(chromId),
        Start  : uint32(start),
        End    : uint32(end),
        Min    : float32(math.NaN()),
        Max    : float32(math.NaN()) }
      // loop over all bins overlapping the current window
      for j := start/binSize; j < divIntUp(end, binSize); j++ {
        if math.IsNaN(sequence[j]) {
          continue
        }
        overlap := iMin((j+1)*binSize, end) - iMax(j*binSize, start)
        record.AddValue(sequence[j], overlap)
      }
      if record.Valid == 0 {
        continue
      }
      if err := record.Write(&buffer, encoder.order); err != nil {
        return
      }
      if from == -1 {
        from = start
      }
      to = end
      count++
      if count == encoder.ItemsPerSlot {
        flush()
      }
    }
    flush()
  }()
  return channel
}

/* chromosome B+ tree
 * -------------------------------------------------------------------------- */

type BData struct {
  KeySize       uint32
  ValueSize     uint32
  ItemsPerBlock uint32
  ItemCount     uint64

  Keys   [][]byte
  Values [][]byte

  PtrKeys   []int64
  PtrValues []int64
}

func NewBData() *BData {
  data := BData{}
  // default values
  data.KeySize       = 0
  data.ValueSize     = 0
  data.ItemsPerBlock = 0
  data.ItemCount     = 0
  return &data
}

func (data *BData) Add(key, value []byte) error {
  if uint32(len(key)) != data.KeySize {
    return fmt.Errorf("BData.Add(): key has invalid length")
  }
  if uint32(len(value)) != data.ValueSize {
    return fmt.Errorf("BData.Add(): value has invalid length")
  }
  for _, k := range data.Keys {
    if bytes.Equal(k, key) {
      return fmt.Errorf("BData.Add(): duplicate key `%s'", bytes.TrimRight(key, "\x00"))
    }
  }
  data.Keys   = append(data.Keys,   key)
  data.Values = append(data.Values, value)
  data.ItemsPerBlock++
  data.ItemCount++
  return nil
}

func (data *BData) readVertexLeaf(reader io.ReadSeeker, order binary.ByteOrder) error {
  var nVals   uint16
  var key   []byte
  var value []byte

  if err := binary.Read(reader, order, &nVals); err != nil {
    return err
  }
  for i := 0; i < int(nVals); i++ {
    key   = make([]byte, data.KeySize)
    value = make([]byte, data.ValueSize)
    ptrKey,   _ := reader.Seek(0, 1)
    if err := binary.Read(reader, order, &key); err != nil {
      return err
    }
    ptrValue, _ := reader.Seek(0, 1)
    if err := binary.Read(reader, order, &value); err != nil {
      return err
    }
    data.Keys      = append(data.Keys,      key)
    data.Values    = append(data.Values,    value)
    data.PtrKeys   = append(data.PtrKeys,   ptrKey)
    data.PtrValues = append(data.PtrValues, ptrValue)
  }
  return nil
}

func (data *BData) readVertexIndex(reader io.ReadSeeker, order binary.ByteOrder) error {
  var nVals     uint16
  var position  uint64

  key := make([]byte, data.KeySize)

  if err := binary.Read(reader, order, &nVals); err != nil {
    return err
  }
  for i := 0; i < int(nVals); i++ {
    if err := binary.Read(reader, order, &key); err != nil {
      return err
    }
    if err := binary.Read(reader, order, &position); err != nil {
      return err
    }
    // save current position and jump to child vertex
    currentPosition, _ := reader.Seek(0, 1)
    if _, err := reader.Seek(int64(position), 0); err != nil {
      return err
    }
    if err := data.readVertex(reader, order); err != nil {
      return err
    }
    if _, err := reader.Seek(currentPosition, 0); err != nil {
      return err
    }
  }
  return nil
}

func (data *BData) readVertex(reader io.ReadSeeker, order binary.ByteOrder) error {
  var isLeaf  uint8
  var padding uint8

  if err := binary.Read(reader, order, &isLeaf); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &padding); err != nil {
    return err
  }
  if isLeaf != 0 {
    return data.readVertexLeaf(reader, order)
  } else {
    return data.readVertexIndex(reader, order)
  }
}

func (data *BData) Read(reader io.ReadSeeker, order binary.ByteOrder) error {

  var magic uint32

  // magic number
  if err := binary.Read(reader, order, &magic); err != nil {
    return err
  }
  if magic != CIRTREE_MAGIC {
    return fmt.Errorf("chromosome tree: %w", ErrBadMagic)
  }
  if err := binary.Read(reader, order, &data.ItemsPerBlock); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &data.KeySize); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &data.ValueSize); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &data.ItemCount); err != nil {
    return err
  }
  // padding
  if err := binary.Read(reader, order, &magic); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &magic); err != nil {
    return err
  }
  return data.readVertex(reader, order)
}

func (data *BData) Write(writer io.WriteSeeker, order binary.ByteOrder) error {
  tree := NewBTree(data)
  return tree.Write(writer, order)
}

/* -------------------------------------------------------------------------- */

type BTree struct {
  KeySize       uint32
  ValueSize     uint32
  ItemsPerBlock uint32
  ItemCount     uint64
  Root          BVertex
}

type BVertex struct {
  IsLeaf     uint8
  Keys     [][]byte
  Values   [][]byte
  Children   []BVertex
}

func NewBTree(data *BData) *BTree {
  tree := BTree{}
  tree.KeySize       = data.KeySize
  tree.ValueSize     = data.ValueSize
  tree.ItemsPerBlock = data.ItemsPerBlock
  tree.ItemCount     = data.ItemCount
  // compute tree depth; a single item is stored in a single leaf
  d := 1
  if data.ItemCount > 1 && data.ItemsPerBlock > 1 {
    d = int(math.Ceil(math.Log(float64(data.ItemCount))/math.Log(float64(data.ItemsPerBlock))))
  }

  tree.Root.BuildTree(data, 0, data.ItemCount, d-1)

  return &tree
}

func (vertex *BVertex) BuildTree(data *BData, from, to uint64, level int) (uint64, error) {
  // number of values below this node
  i := uint64(0)
  if level == 0 {
    vertex.IsLeaf = 1
    for nVals := uint16(0); uint32(nVals) < data.ItemsPerBlock && from+i < to; nVals++ {
      if uint32(len(data.Keys[from+i])) != data.KeySize {
        return 0, fmt.Errorf("key number `%d' has invalid size", i)
      }
      if uint32(len(data.Values[from+i])) != data.ValueSize {
        return 0, fmt.Errorf("value number `%d' has invalid size", i)
      }
      vertex.Keys   = append(vertex.Keys,   data.Keys  [from+i])
      vertex.Values = append(vertex.Values, data.Values[from+i])
      i++
    }
  } else {
    vertex.IsLeaf = 0
    for nVals := uint16(0); uint32(nVals) < data.ItemsPerBlock && from+i < to; nVals++ {
      // append first key
      vertex.Keys = append(vertex.Keys, data.Keys[from+i])
      // create new child vertex
      v := BVertex{}
      if j, err := v.BuildTree(data, from+i, to, level-1); err != nil {
        return 0, err
      } else {
        i += j
      }
      // append child
      vertex.Children = append(vertex.Children, v)
    }
  }
  return i, nil
}

func (vertex *BVertex) writeLeaf(writer io.WriteSeeker, order binary.ByteOrder) error {
  padding := uint8(0)
  nVals   := uint16(len(vertex.Keys))

  if err := binary.Write(writer, order, vertex.IsLeaf); err != nil {
    return err
  }
  if err := binary.Write(writer, order, padding); err != nil {
    return err
  }
  if err := binary.Write(writer, order, nVals); err != nil {
    return err
  }
  for i := 0; i < len(vertex.Keys); i++ {
    if err := binary.Write(writer, order, vertex.Keys[i]); err != nil {
      return err
    }
    if err := binary.Write(writer, order, vertex.Values[i]); err != nil {
      return err
    }
  }
  return nil
}

func (vertex *BVertex) writeIndex(writer io.WriteSeeker, order binary.ByteOrder) error {
  isLeaf  := uint8(0)
  padding := uint8(0)
  nVals   := uint16(len(vertex.Keys))
  offsets := make([]int64, nVals)

  if err := binary.Write(writer, order, isLeaf); err != nil {
    return err
  }
  if err := binary.Write(writer, order, padding); err != nil {
    return err
  }
  if err := binary.Write(writer, order, nVals); err != nil {
    return err
  }
  for i := 0; i < int(nVals); i++ {
    if err := binary.Write(writer, order, vertex.Keys[i]); err != nil {
      return err
    }
    // save current file offset
    offsets[i], _ = writer.Seek(0, 1)
    // offset of the ith child vertex (first set to zero)
    if err := binary.Write(writer, order, uint64(0)); err != nil {
      return err
    }
  }
  // write child vertices
  for i := 0; i < int(nVals); i++ {
    // get current file offset (where the ith child vertex begins)
    offset, _ := writer.Seek(0, 1)
    // and write it at the expected position
    if err := fileWriteAt(writer, order, offsets[i], uint64(offset)); err != nil {
      return err
    }
    // write ith child
    if err := vertex.Children[i].write(writer, order); err != nil {
      return err
    }
  }
  return nil
}

func (vertex *BVertex) write(writer io.WriteSeeker, order binary.ByteOrder) error {
  if vertex.IsLeaf != 0 {
    return vertex.writeLeaf(writer, order)
  } else {
    return vertex.writeIndex(writer, order)
  }
}

func (tree *BTree) Write(writer io.WriteSeeker, order binary.ByteOrder) error {
  magic := uint32(CIRTREE_MAGIC)

  // ItemsPerBlock has 32 bits but nVals has only 16 bits, check for overflow
  if tree.ItemsPerBlock > uint32(^uint16(0)) {
    return fmt.Errorf("ItemsPerBlock too large (maximum value is `%d')", ^uint16(0))
  }

  if err := binary.Write(writer, order, magic); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.ItemsPerBlock); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.KeySize); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.ValueSize); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.ItemCount); err != nil {
    return err
  }
  // padding
  if err := binary.Write(writer, order, uint64(0)); err != nil {
    return err
  }
  return tree.Root.write(writer, order)
}

/* R-tree index
 * -------------------------------------------------------------------------- */

type RTree struct {
  BlockSize     uint32
  NItems        uint64
  ChrIdxStart   uint32
  BaseStart     uint32
  ChrIdxEnd     uint32
  BaseEnd       uint32
  IdxSize       uint64
  NItemsPerSlot uint32
  Root          *RVertex
  PtrIdxSize    int64
}

func NewRTree() *RTree {
  tree := RTree{}
  // default values
  tree.BlockSize     = 256
  tree.NItemsPerSlot = 1024
  return &tree
}

func (tree *RTree) IsNil() bool {
  return tree.BlockSize == 0
}

func (tree *RTree) Read(reader io.ReadSeeker, order binary.ByteOrder) error {

  var magic uint32

  // magic number
  if err := binary.Read(reader, order, &magic); err != nil {
    return err
  }
  if magic != IDX_MAGIC {
    return fmt.Errorf("index tree: %w", ErrBadMagic)
  }
  if err := binary.Read(reader, order, &tree.BlockSize); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &tree.NItems); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &tree.ChrIdxStart); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &tree.BaseStart); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &tree.ChrIdxEnd); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &tree.BaseEnd); err != nil {
    return err
  }
  // get current offset
  if offset, err := reader.Seek(0, 1); err != nil {
    return err
  } else {
    tree.PtrIdxSize = offset
  }
  if err := binary.Read(reader, order, &tree.IdxSize); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &tree.NItemsPerSlot); err != nil {
    return err
  }
  // padding
  if err := binary.Read(reader, order, &magic); err != nil {
    return err
  }
  tree.Root = new(RVertex)
  return tree.Root.Read(reader, order)
}

func (tree *RTree) WriteSize(writer io.WriteSeeker, order binary.ByteOrder) error {
  return fileWriteAt(writer, order, tree.PtrIdxSize, tree.IdxSize)
}

func (tree *RTree) Write(writer io.WriteSeeker, order binary.ByteOrder) error {
  var offsetStart int64
  // get current offset
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    offsetStart = offset
  }
  // magic number
  if err := binary.Write(writer, order, uint32(IDX_MAGIC)); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.BlockSize); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.NItems); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.ChrIdxStart); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.BaseStart); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.ChrIdxEnd); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.BaseEnd); err != nil {
    return err
  }
  // get current offset
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    tree.PtrIdxSize = offset
  }
  if err := binary.Write(writer, order, tree.IdxSize); err != nil {
    return err
  }
  if err := binary.Write(writer, order, tree.NItemsPerSlot); err != nil {
    return err
  }
  // padding
  if err := binary.Write(writer, order, uint32(0)); err != nil {
    return err
  }
  if tree.Root != nil {
    if err := tree.Root.Write(writer, order); err != nil {
      return err
    }
  }
  // update index size
  if offsetEnd, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    tree.IdxSize = uint64(offsetEnd - offsetStart)
  }
  return tree.WriteSize(writer, order)
}

func (tree *RTree) buildTreeRec(leaves []*RVertex, level int) (*RVertex, []*RVertex) {
  v := new(RVertex)
  n := len(leaves)
  // return if there are no leaves
  if n == 0 {
    return nil, leaves
  }
  if level == 0 {
    if n > int(tree.BlockSize) {
      n = int(tree.BlockSize)
    }
    v.NChildren   = uint16(n)
    v.Children    = leaves[0:n]
    // update free leaf set
    leaves = leaves[n:]
  } else {
    for i := 0; i < int(tree.BlockSize) && len(leaves) > 0; i++ {
      var vertex *RVertex
      vertex, leaves = tree.buildTreeRec(leaves, level-1)
      v.NChildren++
      v.Children = append(v.Children, vertex)
    }
  }
  for i := 0; i < len(v.Children); i++ {
    v.ChrIdxStart = append(v.ChrIdxStart, v.Children[i].ChrIdxStart[0])
    v.ChrIdxEnd   = append(v.ChrIdxEnd,   v.Children[i].ChrIdxEnd[v.Children[i].NChildren-1])
    v.BaseStart   = append(v.BaseStart,   v.Children[i].BaseStart[0])
    v.BaseEnd     = append(v.BaseEnd,     v.Children[i].BaseEnd[v.Children[i].NChildren-1])
  }
  return v, leaves
}

func (tree *RTree) BuildTree(leaves []*RVertex) error {
  if len(leaves) == 0 {
    return nil
  }
  if len(leaves) == 1 {
    tree.Root = leaves[0]
  } else {
    // compute tree depth
    d := int(math.Ceil(math.Log(float64(len(leaves)))/math.Log(float64(tree.BlockSize))))
    // construct tree
    if root, leaves := tree.buildTreeRec(leaves, d-1); len(leaves) != 0 {
      panic("internal error")
    } else {
      tree.Root = root
    }
  }
  tree.ChrIdxStart = tree.Root.ChrIdxStart[0]
  tree.ChrIdxEnd   = tree.Root.ChrIdxEnd[tree.Root.NChildren-1]
  tree.BaseStart   = tree.Root.BaseStart[0]
  tree.BaseEnd     = tree.Root.BaseEnd[tree.Root.NChildren-1]
  for _, leaf := range leaves {
    tree.NItems += uint64(leaf.NChildren)
  }
  return nil
}

/* -------------------------------------------------------------------------- */

type RVertex struct {
  IsLeaf        uint8
  NChildren     uint16
  ChrIdxStart []uint32
  BaseStart   []uint32
  ChrIdxEnd   []uint32
  BaseEnd     []uint32
  DataOffset  []uint64
  Sizes       []uint64
  Children    []*RVertex
  // positions of DataOffset and Sizes values in file
  PtrDataOffset []int64
  PtrSizes      []int64
}

func (vertex *RVertex) ReadBlock(reader io.ReadSeeker, bwf *BbiFile, i int) ([]byte, error) {
  var err error
  block := make([]byte, vertex.Sizes[i])
  if err = fileReadAt(reader, bwf.Order, int64(vertex.DataOffset[i]), &block); err != nil {
    return nil, err
  }
  if bwf.Header.UncompressBufSize != 0 {
    if block, err = uncompressSlice(block); err != nil {
      return nil, err
    }
  }
  return block, nil
}

func (vertex *RVertex) WriteBlock(writer io.WriteSeeker, bwf *BbiFile, i int, block []byte) error {
  var err error
  if bwf.Header.UncompressBufSize != 0 {
    // update header.UncompressBufSize if block length
    // exceeds size
    if uint32(len(block)) > bwf.Header.UncompressBufSize {
      bwf.Header.UncompressBufSize = uint32(len(block))
      if err = bwf.Header.WriteUncompressBufSize(writer, bwf.Order); err != nil {
        return err
      }
    }
    if block, err = compressSlice(block); err != nil {
      return err
    }
  }
  // get current offset and update DataOffset[i]
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    vertex.DataOffset[i] = uint64(offset)
    // write updated value to the required position in the file
    if vertex.PtrDataOffset[i] != 0 {
      if err = fileWriteAt(writer, bwf.Order, vertex.PtrDataOffset[i], vertex.DataOffset[i]); err != nil {
        return err
      }
    }
  }
  // write data
  if err = binary.Write(writer, bwf.Order, block); err != nil {
    return err
  }
  // update size of the data block
  vertex.Sizes[i] = uint64(len(block))
  // write it to the required position in the file
  if vertex.PtrSizes[i] != 0 {
    if err = fileWriteAt(writer, bwf.Order, vertex.PtrSizes[i], vertex.Sizes[i]); err != nil {
      return err
    }
  }
  return nil
}

func (vertex *RVertex) Read(reader io.ReadSeeker, order binary.ByteOrder) error {

  var padding uint8

  if err := binary.Read(reader, order, &vertex.IsLeaf); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &padding); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &vertex.NChildren); err != nil {
    return err
  }
  // allocate data
  vertex.ChrIdxStart   = make([]uint32, vertex.NChildren)
  vertex.BaseStart     = make([]uint32, vertex.NChildren)
  vertex.ChrIdxEnd     = make([]uint32, vertex.NChildren)
  vertex.BaseEnd       = make([]uint32, vertex.NChildren)
  vertex.DataOffset    = make([]uint64, vertex.NChildren)
  vertex.PtrDataOffset = make([] int64, vertex.NChildren)
  if vertex.IsLeaf != 0 {
    vertex.Sizes       = make([]uint64, vertex.NChildren)
    vertex.PtrSizes    = make([] int64, vertex.NChildren)
  } else {
    vertex.Children    = make([]*RVertex, vertex.NChildren)
  }

  for i := 0; i < int(vertex.NChildren); i++ {
    if err := binary.Read(reader, order, &vertex.ChrIdxStart[i]); err != nil {
      return err
    }
    if err := binary.Read(reader, order, &vertex.BaseStart[i]); err != nil {
      return err
    }
    if err := binary.Read(reader, order, &vertex.ChrIdxEnd[i]); err != nil {
      return err
    }
    if err := binary.Read(reader, order, &vertex.BaseEnd[i]); err != nil {
      return err
    }
    if offset, err := reader.Seek(0, 1); err != nil {
      return err
    } else {
      vertex.PtrDataOffset[i] = offset
    }
    if err := binary.Read(reader, order, &vertex.DataOffset[i]); err != nil {
      return err
    }
    if vertex.IsLeaf != 0 {
      if offset, err := reader.Seek(0, 1); err != nil {
        return err
      } else {
        vertex.PtrSizes[i] = offset
      }
      if err := binary.Read(reader, order, &vertex.Sizes[i]); err != nil {
        return err
      }
    }
  }
  if vertex.IsLeaf == 0 {
    for i := 0; i < int(vertex.NChildren); i++ {
      // seek to child position
      if _, err := reader.Seek(int64(vertex.DataOffset[i]), 0); err != nil {
        return err
      }
      vertex.Children[i] = new(RVertex)
      if err := vertex.Children[i].Read(reader, order); err != nil {
        return err
      }
    }
  }
  return nil
}

func (vertex *RVertex) Write(writer io.WriteSeeker, order binary.ByteOrder) error {

  if len(vertex.DataOffset) != int(vertex.NChildren) {
    vertex.DataOffset = make([]uint64, vertex.NChildren)
  }
  if len(vertex.Sizes) != int(vertex.NChildren) {
    vertex.Sizes = make([]uint64, vertex.NChildren)
  }
  if len(vertex.PtrDataOffset) != int(vertex.NChildren) {
    vertex.PtrDataOffset = make([]int64, vertex.NChildren)
  }
  if len(vertex.PtrSizes) != int(vertex.NChildren) {
    vertex.PtrSizes = make([]int64, vertex.NChildren)
  }

  if err := binary.Write(writer, order, vertex.IsLeaf); err != nil {
    return err
  }
  // padding
  if err := binary.Write(writer, order, uint8(0)); err != nil {
    return err
  }
  if err := binary.Write(writer, order, vertex.NChildren); err != nil {
    return err
  }

  for i := 0; i < int(vertex.NChildren); i++ {
    if err := binary.Write(writer, order, vertex.ChrIdxStart[i]); err != nil {
      return err
    }
    if err := binary.Write(writer, order, vertex.BaseStart[i]); err != nil {
      return err
    }
    if err := binary.Write(writer, order, vertex.ChrIdxEnd[i]); err != nil {
      return err
    }
    if err := binary.Write(writer, order, vertex.BaseEnd[i]); err != nil {
      return err
    }
    // save current offset
    if offset, err := writer.Seek(0, 1); err != nil {
      return err
    } else {
      vertex.PtrDataOffset[i] = offset
    }
    if err := binary.Write(writer, order, vertex.DataOffset[i]); err != nil {
      return err
    }
    if vertex.IsLeaf != 0 {
      // save current offset
      if offset, err := writer.Seek(0, 1); err != nil {
        return err
      } else {
        vertex.PtrSizes[i] = offset
      }
      if err := binary.Write(writer, order, vertex.Sizes[i]); err != nil {
        return err
      }
    }
  }
  if vertex.IsLeaf == 0 {
    for i := 0; i < int(vertex.NChildren); i++ {
      if offset, err := writer.Seek(0, 1); err != nil {
        return err
      } else {
        // save current offset
        vertex.DataOffset[i] = uint64(offset)
        // and write at the required position
        if err := fileWriteAt(writer, order, vertex.PtrDataOffset[i], vertex.DataOffset[i]); err != nil {
          return err
        }
        if err := vertex.Children[i].Write(writer, order); err != nil {
          return err
        }
      }
    }
  }
  return nil
}

/* R-tree traversal
 * -------------------------------------------------------------------------- */

type RTreeTraverserType struct {
  Vertex *RVertex
  Idx    int
}

// Iterative traversal of the R-tree. Results are the (vertex, child)
// pairs of all leaves overlapping the query rectangle, in index order,
// i.e. in ascending file offset order for a well-formed file.
type RTreeTraverser struct {
  chromIx int
  from    int
  to      int
  stack   []RTreeTraverserType
  result  *RTreeTraverserType
}

func NewRTreeTraverser(tree *RTree, chromIx, from, to int) *RTreeTraverser {
  r := RTreeTraverser{}
  r.chromIx = chromIx
  r.from    = from
  r.to      = to
  if tree.Root != nil {
    r.stack = append(r.stack, RTreeTraverserType{tree.Root, 0})
  }
  r.Next()
  return &r
}

// A child overlaps the query if (endChromIx, endBase) > (chromIx, from)
// and (startChromIx, startBase) < (chromIx, to) in lexicographic order.
func (traverser *RTreeTraverser) overlaps(vertex *RVertex, i int) bool {
  if int(vertex.ChrIdxEnd[i]) < traverser.chromIx {
    return false
  }
  if int(vertex.ChrIdxEnd[i]) == traverser.chromIx && int(vertex.BaseEnd[i]) <= traverser.from {
    return false
  }
  if int(vertex.ChrIdxStart[i]) > traverser.chromIx {
    return false
  }
  if int(vertex.ChrIdxStart[i]) == traverser.chromIx && int(vertex.BaseStart[i]) >= traverser.to {
    return false
  }
  return true
}

func (traverser *RTreeTraverser) Get() *RTreeTraverserType {
  return traverser.result
}

func (traverser *RTreeTraverser) Ok() bool {
  return traverser.result != nil
}

func (traverser *RTreeTraverser) Next() {
  for len(traverser.stack) > 0 {
    top    := &traverser.stack[len(traverser.stack)-1]
    vertex := top.Vertex
    if top.Idx >= int(vertex.NChildren) {
      traverser.stack = traverser.stack[0:len(traverser.stack)-1]
      continue
    }
    i := top.Idx
    top.Idx++
    if !traverser.overlaps(vertex, i) {
      continue
    }
    if vertex.IsLeaf != 0 {
      traverser.result = &RTreeTraverserType{vertex, i}
      return
    }
    traverser.stack = append(traverser.stack, RTreeTraverserType{vertex.Children[i], 0})
  }
  traverser.result = nil
}

/* R-vertex generator
 * -------------------------------------------------------------------------- */

type RVertexGeneratorType struct {
  Vertex *RVertex
  Blocks [][]byte
}

// Split sequences into data blocks and assemble the R-tree leaves
// referencing them. If reductionLevel is greater than binSize, zoomed
// summary blocks are generated instead of raw data blocks.
type RVertexGenerator struct {
  BlockSize    int
  ItemsPerSlot int
  order        binary.ByteOrder
}

func NewRVertexGenerator(blockSize, itemsPerSlot int, order binary.ByteOrder) (*RVertexGenerator, error) {
  if blockSize <= 0 {
    return nil, fmt.Errorf("invalid block size `%d'", blockSize)
  }
  if itemsPerSlot <= 0 {
    return nil, fmt.Errorf("invalid items per slot `%d'", itemsPerSlot)
  }
  generator := RVertexGenerator{}
  generator.BlockSize    = blockSize
  generator.ItemsPerSlot = itemsPerSlot
  generator.order        = order
  return &generator, nil
}

func (generator *RVertexGenerator) Generate(idx int, sequence []float64, binSize, reductionLevel int, fixedStep bool) <- chan RVertexGeneratorType {
  channel := make(chan RVertexGeneratorType)
  go func() {
    generator.fillChannel(channel, idx, sequence, binSize, reductionLevel, fixedStep)
    close(channel)
  }()
  return channel
}

func (generator *RVertexGenerator) fillChannel(channel chan RVertexGeneratorType, idx int, sequence []float64, binSize, reductionLevel int, fixedStep bool) error {
  var encoder BbiBlockEncoder
  // create block encoder
  if reductionLevel > binSize {
    // use a zoom block encoder
    if tmp, err := NewBbiZoomBlockEncoder(generator.ItemsPerSlot, reductionLevel, generator.order); err != nil {
      return err
    } else {
      encoder = tmp
    }
  } else {
    // use a raw block encoder
    if tmp, err := NewBbiRawBlockEncoder(generator.ItemsPerSlot, fixedStep, generator.order); err != nil {
      return err
    } else {
      encoder = tmp
    }
  }
  // current leaf
  v := new(RVertex)
  v.IsLeaf = 1
  // blocks belonging to the current leaf
  b := [][]byte{}
  for chunk := range encoder.Encode(idx, sequence, binSize) {
    if int(v.NChildren) == generator.BlockSize {
      // vertex is full
      channel <- RVertexGeneratorType{v, b}
      // create new empty vertex
      v = new(RVertex)
      v.IsLeaf = 1
      b = [][]byte{}
    }
    v.ChrIdxStart   = append(v.ChrIdxStart,   uint32(idx))
    v.ChrIdxEnd     = append(v.ChrIdxEnd,     uint32(idx))
    v.BaseStart     = append(v.BaseStart,     uint32(chunk.From))
    v.BaseEnd       = append(v.BaseEnd,       uint32(chunk.To))
    v.DataOffset    = append(v.DataOffset,    0)
    v.Sizes         = append(v.Sizes,         0)
    v.PtrDataOffset = append(v.PtrDataOffset, 0)
    v.PtrSizes      = append(v.PtrSizes,      0)
    v.NChildren++
    b = append(b, chunk.Block)
  }
  if v.NChildren != 0 {
    channel <- RVertexGeneratorType{v, b}
  }
  return nil
}

/* zoom headers
 * -------------------------------------------------------------------------- */

type BbiHeaderZoom struct {
  ReductionLevel uint32
  Reserved       uint32
  DataOffset     uint64
  IndexOffset    uint64
  NBlocks        uint32
  // offset positions
  PtrDataOffset  int64
  PtrIndexOffset int64
}

func (zoomHeader *BbiHeaderZoom) Read(reader io.ReadSeeker, order binary.ByteOrder) error {
  if err := binary.Read(reader, order, &zoomHeader.ReductionLevel); err != nil {
    return err
  }
  if err := binary.Read(reader, order, &zoomHeader.Reserved); err != nil {
    return err
  }
  if offset, err := reader.Seek(0, 1); err != nil {
    return err
  } else {
    zoomHeader.PtrDataOffset = offset
  }
  if err := binary.Read(reader, order, &zoomHeader.DataOffset); err != nil {
    return err
  }
  if offset, err := reader.Seek(0, 1); err != nil {
    return err
  } else {
    zoomHeader.PtrIndexOffset = offset
  }
  if err := binary.Read(reader, order, &zoomHeader.IndexOffset); err != nil {
    return err
  }
  return nil
}

func (zoomHeader *BbiHeaderZoom) Write(writer io.WriteSeeker, order binary.ByteOrder) error {
  if err := binary.Write(writer, order, zoomHeader.ReductionLevel); err != nil {
    return err
  }
  if err := binary.Write(writer, order, zoomHeader.Reserved); err != nil {
    return err
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    zoomHeader.PtrDataOffset = offset
  }
  if err := binary.Write(writer, order, zoomHeader.DataOffset); err != nil {
    return err
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    zoomHeader.PtrIndexOffset = offset
  }
  if err := binary.Write(writer, order, zoomHeader.IndexOffset); err != nil {
    return err
  }
  return nil
}

func (zoomHeader *BbiHeaderZoom) WriteOffsets(writer io.WriteSeeker, order binary.ByteOrder) error {
  if zoomHeader.PtrDataOffset != 0 {
    if err := fileWriteAt(writer, order, zoomHeader.PtrDataOffset, zoomHeader.DataOffset); err != nil {
      return err
    }
  }
  if zoomHeader.PtrIndexOffset != 0 {
    if err := fileWriteAt(writer, order, zoomHeader.PtrIndexOffset, zoomHeader.IndexOffset); err != nil {
      return err
    }
  }
  return nil
}

// The zoom data section begins with the number of blocks, which is
// patched once all blocks are written.
func (zoomHeader *BbiHeaderZoom) WriteNBlocks(writer io.WriteSeeker, order binary.ByteOrder) error {
  return fileWriteAt(writer, order, int64(zoomHeader.DataOffset), zoomHeader.NBlocks)
}

/* file header
 * -------------------------------------------------------------------------- */

type BbiHeader struct {
  Magic             uint32
  Version           uint16
  ZoomLevels        uint16
  CtOffset          uint64
  DataOffset        uint64
  IndexOffset       uint64
  FieldCount        uint16
  DefinedFieldCount uint16
  SqlOffset         uint64
  SummaryOffset     uint64
  UncompressBufSize uint32
  ExtensionOffset   uint64
  NBasesCovered     uint64
  MinVal            float64
  MaxVal            float64
  SumData           float64
  SumSquares        float64
  ZoomHeaders     []BbiHeaderZoom
  NBlocks           uint64
  // offset positions
  PtrCtOffset          int64
  PtrDataOffset        int64
  PtrIndexOffset       int64
  PtrSqlOffset         int64
  PtrSummaryOffset     int64
  PtrUncompressBufSize int64
  PtrExtensionOffset   int64
}

func NewBbiHeader() *BbiHeader {
  header := BbiHeader{}
  header.Version = 4
  return &header
}

// Update the total summary with a single track value covering binSize
// bases.
func (header *BbiHeader) SummaryAddValue(x float64, binSize int) {
  if math.IsNaN(x) {
    return
  }
  if header.NBasesCovered == 0 {
    header.MinVal = x
    header.MaxVal = x
  } else {
    if header.MinVal > x {
      header.MinVal = x
    }
    if header.MaxVal < x {
      header.MaxVal = x
    }
  }
  header.NBasesCovered += uint64(binSize)
  header.SumData       += x*float64(binSize)
  header.SumSquares    += x*x*float64(binSize)
}

// Parse the fixed size file header. The byte order is detected from the
// magic number and returned on success.
func (header *BbiHeader) Read(reader io.ReadSeeker, magic uint32) (binary.ByteOrder, error) {

  var order binary.ByteOrder = binary.LittleEndian

  if err := binary.Read(reader, binary.LittleEndian, &header.Magic); err != nil {
    if err == io.EOF || err == io.ErrUnexpectedEOF {
      return nil, ErrTruncatedData
    }
    return nil, err
  }
  if header.Magic != magic {
    // try big endian
    tmp := make([]byte, 4)
    binary.LittleEndian.PutUint32(tmp, header.Magic)
    if binary.BigEndian.Uint32(tmp) != magic {
      return nil, ErrBadMagic
    }
    header.Magic = magic
    order = binary.BigEndian
  }
  if err := binary.Read(reader, order, &header.Version); err != nil {
    return nil, err
  }
  if header.Version < 3 {
    return nil, fmt.Errorf("file version `%d': %w", header.Version, ErrUnsupportedVersion)
  }
  if err := binary.Read(reader, order, &header.ZoomLevels); err != nil {
    return nil, err
  }
  if offset, err := reader.Seek(0, 1); err != nil {
    return nil, err
  } else {
    header.PtrCtOffset = offset
  }
  if err := binary.Read(reader, order, &header.CtOffset); err != nil {
    return nil, err
  }
  if offset, err := reader.Seek(0, 1); err != nil {
    return nil, err
  } else {
    header.PtrDataOffset = offset
  }
  if err := binary.Read(reader, order, &header.DataOffset); err != nil {
    return nil, err
  }
  if offset, err := reader.Seek(0, 1); err != nil {
    return nil, err
  } else {
    header.PtrIndexOffset = offset
  }
  if err := binary.Read(reader, order, &header.IndexOffset); err != nil {
    return nil, err
  }
  if err := binary.Read(reader, order, &header.FieldCount); err != nil {
    return nil, err
  }
  if err := binary.Read(reader, order, &header.DefinedFieldCount); err != nil {
    return nil, err
  }
  if offset, err := reader.Seek(0, 1); err != nil {
    return nil, err
  } else {
    header.PtrSqlOffset = offset
  }
  if err := binary.Read(reader, order, &header.SqlOffset); err != nil {
    return nil, err
  }
  if offset, err := reader.Seek(0, 1); err != nil {
    return nil, err
  } else {
    header.PtrSummaryOffset = offset
  }
  if err := binary.Read(reader, order, &header.SummaryOffset); err != nil {
    return nil, err
  }
  if offset, err := reader.Seek(0, 1); err != nil {
    return nil, err
  } else {
    header.PtrUncompressBufSize = offset
  }
  if err := binary.Read(reader, order, &header.UncompressBufSize); err != nil {
    return nil, err
  }
  if offset, err := reader.Seek(0, 1); err != nil {
    return nil, err
  } else {
    header.PtrExtensionOffset = offset
  }
  if err := binary.Read(reader, order, &header.ExtensionOffset); err != nil {
    return nil, err
  }
  // zoom levels
  header.ZoomHeaders = make([]BbiHeaderZoom, header.ZoomLevels)
  for i := 0; i < int(header.ZoomLevels); i++ {
    if err := header.ZoomHeaders[i].Read(reader, order); err != nil {
      return nil, err
    }
  }
  // summary
  if header.SummaryOffset > 0 {
    if _, err := reader.Seek(int64(header.SummaryOffset), 0); err != nil {
      return nil, err
    }
    if err := binary.Read(reader, order, &header.NBasesCovered); err != nil {
      return nil, err
    }
    if err := binary.Read(reader, order, &header.MinVal); err != nil {
      return nil, err
    }
    if err := binary.Read(reader, order, &header.MaxVal); err != nil {
      return nil, err
    }
    if err := binary.Read(reader, order, &header.SumData); err != nil {
      return nil, err
    }
    if err := binary.Read(reader, order, &header.SumSquares); err != nil {
      return nil, err
    }
  }
  // number of blocks in the data section
  if header.DataOffset > 0 {
    if err := fileReadAt(reader, order, int64(header.DataOffset), &header.NBlocks); err != nil {
      return nil, err
    }
  }
  return order, nil
}

func (header *BbiHeader) WriteOffsets(writer io.WriteSeeker, order binary.ByteOrder) error {
  if err := fileWriteAt(writer, order, header.PtrCtOffset, header.CtOffset); err != nil {
    return err
  }
  if err := fileWriteAt(writer, order, header.PtrDataOffset, header.DataOffset); err != nil {
    return err
  }
  if err := fileWriteAt(writer, order, header.PtrIndexOffset, header.IndexOffset); err != nil {
    return err
  }
  if err := fileWriteAt(writer, order, header.PtrSqlOffset, header.SqlOffset); err != nil {
    return err
  }
  if err := fileWriteAt(writer, order, header.PtrExtensionOffset, header.ExtensionOffset); err != nil {
    return err
  }
  return nil
}

func (header *BbiHeader) WriteUncompressBufSize(writer io.WriteSeeker, order binary.ByteOrder) error {
  return fileWriteAt(writer, order, header.PtrUncompressBufSize, header.UncompressBufSize)
}

// The data section begins with the number of blocks, which is patched
// once all blocks are written.
func (header *BbiHeader) WriteNBlocks(writer io.WriteSeeker, order binary.ByteOrder) error {
  return fileWriteAt(writer, order, int64(header.DataOffset), header.NBlocks)
}

// Append the total summary to the end of the file and patch the summary
// offset in the header.
func (header *BbiHeader) WriteSummary(writer io.WriteSeeker, order binary.ByteOrder) error {
  if header.NBasesCovered == 0 {
    return nil
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    header.SummaryOffset = uint64(offset)
    if err := fileWriteAt(writer, order, header.PtrSummaryOffset, header.SummaryOffset); err != nil {
      return err
    }
  }
  if err := binary.Write(writer, order, header.NBasesCovered); err != nil {
    return err
  }
  if err := binary.Write(writer, order, header.MinVal); err != nil {
    return err
  }
  if err := binary.Write(writer, order, header.MaxVal); err != nil {
    return err
  }
  if err := binary.Write(writer, order, header.SumData); err != nil {
    return err
  }
  if err := binary.Write(writer, order, header.SumSquares); err != nil {
    return err
  }
  return nil
}

func (header *BbiHeader) Write(writer io.WriteSeeker, order binary.ByteOrder) error {

  if err := binary.Write(writer, order, header.Magic); err != nil {
    return err
  }
  if err := binary.Write(writer, order, header.Version); err != nil {
    return err
  }
  if err := binary.Write(writer, order, header.ZoomLevels); err != nil {
    return err
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    header.PtrCtOffset = offset
  }
  if err := binary.Write(writer, order, header.CtOffset); err != nil {
    return err
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    header.PtrDataOffset = offset
  }
  if err := binary.Write(writer, order, header.DataOffset); err != nil {
    return err
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    header.PtrIndexOffset = offset
  }
  if err := binary.Write(writer, order, header.IndexOffset); err != nil {
    return err
  }
  if err := binary.Write(writer, order, header.FieldCount); err != nil {
    return err
  }
  if err := binary.Write(writer, order, header.DefinedFieldCount); err != nil {
    return err
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    header.PtrSqlOffset = offset
  }
  if err := binary.Write(writer, order, header.SqlOffset); err != nil {
    return err
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    header.PtrSummaryOffset = offset
  }
  if err := binary.Write(writer, order, header.SummaryOffset); err != nil {
    return err
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    header.PtrUncompressBufSize = offset
  }
  if err := binary.Write(writer, order, header.UncompressBufSize); err != nil {
    return err
  }
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    header.PtrExtensionOffset = offset
  }
  if err := binary.Write(writer, order, header.ExtensionOffset); err != nil {
    return err
  }
  // zoom levels
  for i := 0; i < int(header.ZoomLevels); i++ {
    if err := header.ZoomHeaders[i].Write(writer, order); err != nil {
      return err
    }
  }
  return nil
}

/* query result
 * -------------------------------------------------------------------------- */

type BbiQueryType struct {
  BbiSummaryRecord
  DataType byte
  Error    error
  quit     func()
}

func NewBbiQueryType(quit func()) BbiQueryType {
  return BbiQueryType{
    BbiSummaryRecord: NewBbiSummaryRecord(),
    quit            : quit }
}

// Stop the query stream early. The producer terminates at the next
// yield point and no background work outlives the stream.
func (record BbiQueryType) Quit() {
  if record.quit != nil {
    record.quit()
  }
}

/* -------------------------------------------------------------------------- */

type BbiFile struct {
  Header    BbiHeader
  ChromData BData
  Index     RTree
  IndexZoom []RTree
  Order     binary.ByteOrder
}

func NewBbiFile() *BbiFile {
  bwf := new(BbiFile)
  bwf.Header    = *NewBbiHeader()
  bwf.ChromData = *NewBData()
  bwf.Index     = *NewRTree()
  bwf.Order     = binary.LittleEndian
  return bwf
}

/* reading
 * -------------------------------------------------------------------------- */

// Convert bare end-of-file errors observed while parsing structured
// fields into truncation errors.
func wrapTruncated(err error) error {
  if err == io.EOF || err == io.ErrUnexpectedEOF {
    return ErrTruncatedData
  }
  return err
}

func (bwf *BbiFile) Open(reader io.ReadSeeker, magic uint32) error {
  // parse header
  if order, err := bwf.Header.Read(reader, magic); err != nil {
    return wrapTruncated(err)
  } else {
    bwf.Order = order
  }
  // parse chromosome list, which is represented as a tree
  if _, err := reader.Seek(int64(bwf.Header.CtOffset), 0); err != nil {
    return err
  }
  if err := bwf.ChromData.Read(reader, bwf.Order); err != nil {
    return wrapTruncated(err)
  }
  // parse data index
  if _, err := reader.Seek(int64(bwf.Header.IndexOffset), 0); err != nil {
    return err
  }
  if err := bwf.Index.Read(reader, bwf.Order); err != nil {
    return wrapTruncated(err)
  }
  // parse zoom level indices
  bwf.IndexZoom = make([]RTree, bwf.Header.ZoomLevels)
  for i := 0; i < int(bwf.Header.ZoomLevels); i++ {
    if _, err := reader.Seek(int64(bwf.Header.ZoomHeaders[i].IndexOffset), 0); err != nil {
      return err
    }
    if err := bwf.IndexZoom[i].Read(reader, bwf.Order); err != nil {
      return wrapTruncated(err)
    }
  }
  return nil
}

/* writing
 * -------------------------------------------------------------------------- */

func (bwf *BbiFile) Create(writer io.WriteSeeker) error {
  // write header
  if err := bwf.Header.Write(writer, bwf.Order); err != nil {
    return err
  }
  // data starts here
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    bwf.Header.DataOffset = uint64(offset)
  }
  // update offsets
  if err := bwf.Header.WriteOffsets(writer, bwf.Order); err != nil {
    return err
  }
  // write number of blocks (zero at the moment)
  if err := binary.Write(writer, bwf.Order, uint64(0)); err != nil {
    return err
  }
  return nil
}

func (bwf *BbiFile) WriteChromList(writer io.WriteSeeker) error {
  // write chromosome list
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    bwf.Header.CtOffset = uint64(offset)
  }
  if err := bwf.ChromData.Write(writer, bwf.Order); err != nil {
    return err
  }
  // update offsets
  if err := bwf.Header.WriteOffsets(writer, bwf.Order); err != nil {
    return err
  }
  return nil
}

func (bwf *BbiFile) WriteIndex(writer io.WriteSeeker) error {
  // write data index offset
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    bwf.Header.IndexOffset = uint64(offset)
  }
  // write data index
  if err := bwf.Index.Write(writer, bwf.Order); err != nil {
    return err
  }
  // update offsets
  if err := bwf.Header.WriteOffsets(writer, bwf.Order); err != nil {
    return err
  }
  return nil
}

func (bwf *BbiFile) WriteIndexZoom(writer io.WriteSeeker, i int) error {
  // write data index offset
  if offset, err := writer.Seek(0, 1); err != nil {
    return err
  } else {
    bwf.Header.ZoomHeaders[i].IndexOffset = uint64(offset)
  }
  // write data index
  if err := bwf.IndexZoom[i].Write(writer, bwf.Order); err != nil {
    return err
  }
  // update offsets
  if err := bwf.Header.ZoomHeaders[i].WriteOffsets(writer, bwf.Order); err != nil {
    return err
  }
  return nil
}

/* querying
 * -------------------------------------------------------------------------- */

// Select the coarsest zoom level whose reduction level does not exceed
// the given bin size. Returns -1 if no zoom level qualifies and the
// query has to use the raw data.
func (bwf *BbiFile) queryZoomIdx(binSize int) int {
  zoomIdx := -1
  for i := 0; i < len(bwf.Header.ZoomHeaders); i++ {
    r := int(bwf.Header.ZoomHeaders[i].ReductionLevel)
    if r > 0 && binSize >= r {
      if zoomIdx == -1 || r > int(bwf.Header.ZoomHeaders[zoomIdx].ReductionLevel) {
        zoomIdx = i
      }
    }
  }
  return zoomIdx
}

func (bwf *BbiFile) send(channel chan BbiQueryType, done chan struct{}, record BbiQueryType) bool {
  select {
  case channel <- record:
    return true
  case <- done:
    return false
  }
}

func (bwf *BbiFile) queryBlocks(reader io.ReadSeeker, channel chan BbiQueryType, done chan struct{}, quit func(), index *RTree, zoom bool, chromId, from, to, binSize int) bool {

  result  := NewBbiQueryType(quit)
  nEmitted := 0

  flush := func() bool {
    if result.ChromId == -1 {
      return true
    }
    if result.Valid == 0.0 {
      result.Min = math.NaN()
      result.Max = math.NaN()
    }
    ok := bwf.send(channel, done, result)
    result = NewBbiQueryType(quit)
    nEmitted++
    return ok
  }

  traverser := NewRTreeTraverser(index, chromId, from, to)
  for ; traverser.Ok(); traverser.Next() {
    t := traverser.Get()
    block, err := t.Vertex.ReadBlock(reader, bwf, t.Idx)
    if err != nil {
      // degrade to an in-stream error so that the caller may skip
      // corrupt blocks
      r := NewBbiQueryType(quit)
      r.Error = err
      if !bwf.send(channel, done, r) {
        return false
      }
      continue
    }
    var decoder interface{ Decode() BbiBlockDecoderIterator }
    if zoom {
      if tmp, err := NewBbiZoomBlockDecoder(block, bwf.Order); err != nil {
        r := NewBbiQueryType(quit)
        r.Error = err
        if !bwf.send(channel, done, r) {
          return false
        }
        continue
      } else {
        decoder = tmp
      }
    } else {
      if tmp, err := NewBbiRawBlockDecoder(block, bwf.Order); err != nil {
        r := NewBbiQueryType(quit)
        r.Error = err
        if !bwf.send(channel, done, r) {
          return false
        }
        continue
      } else {
        decoder = tmp
      }
    }
    for it := decoder.Decode(); it.Ok(); it.Next() {
      record := it.Get()
      if record.ChromId != chromId {
        continue
      }
      if record.To <= from || record.From >= to {
        continue
      }
      if record.To <= record.From {
        continue
      }
      rFrom := iMax(record.From, from)
      rTo   := iMin(record.To,   to)
      if binSize <= 0 {
        // return raw records as they are
        r := NewBbiQueryType(quit)
        r.ChromId  = record.ChromId
        r.From     = record.From
        r.To       = record.To
        r.DataType = record.DataType
        r.BbiSummaryStatistics = record.BbiSummaryStatistics
        if !bwf.send(channel, done, r) {
          return false
        }
        nEmitted++
        continue
      }
      // distribute record statistics over overlapping query bins
      for p := rFrom; p < rTo; {
        binFrom := divIntDown(p, binSize)*binSize
        binTo   := binFrom + binSize
        overlap := iMin(rTo, binTo) - p
        if result.ChromId != -1 && result.From != binFrom {
          if !flush() {
            return false
          }
        }
        if result.ChromId == -1 {
          result.ChromId  = chromId
          result.From     = binFrom
          result.To       = binTo
          result.DataType = record.DataType
        }
        f := float64(overlap)/float64(record.To - record.From)
        result.AddScaled(record.BbiSummaryStatistics, f)
        p += overlap
      }
    }
  }
  if !flush() {
    return false
  }
  if nEmitted == 0 {
    // no data found in the given region, emit a single empty summary
    r := NewBbiQueryType(quit)
    r.ChromId = chromId
    r.From    = from
    r.To      = to
    r.Min     = math.NaN()
    r.Max     = math.NaN()
    if !bwf.send(channel, done, r) {
      return false
    }
  }
  return true
}

func (bwf *BbiFile) query(reader io.ReadSeeker, channel chan BbiQueryType, done chan struct{}, quit func(), chromId, from, to, binSize int) bool {
  if zoomIdx := bwf.queryZoomIdx(binSize); zoomIdx != -1 {
    return bwf.queryBlocks(reader, channel, done, quit, &bwf.IndexZoom[zoomIdx], true, chromId, from, to, binSize)
  }
  return bwf.queryBlocks(reader, channel, done, quit, &bwf.Index, false, chromId, from, to, binSize)
}
