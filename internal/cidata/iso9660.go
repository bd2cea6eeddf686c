// Package cidata encodes a minimal, single-level ISO9660 volume used to
// seed a guest's cloud-init first boot ("CIDATA").
//
// The encoder is deliberately dependency-free and bit-level: it writes
// exactly the directory records and volume descriptors ISO9660 requires
// for a flat root directory, nothing more. Sector layout: 0-15 system
// area, 16 primary volume descriptor, 17 set terminator, 18 and 19 the
// L and M path tables, 20 onward the root directory, then file data.
package cidata

import (
	"fmt"
	"os"
	"time"
)

const (
	sectorSize        = 2048
	systemAreaSectors = 16
)

// Entry is a single file placed at the root of the generated volume.
type Entry struct {
	Name     string
	Contents []byte
}

// WriteISO writes a single-track ISO9660 image containing entries at the
// volume root (no subdirectories) to outputPath. volumeLabel is truncated/
// space-padded to 32 bytes per the Primary Volume Descriptor layout.
//
// Any I/O error aborts the write; the caller is responsible for unlinking
// a partially written file (the encoder writes eagerly and does not clean
// up after itself).
func WriteISO(outputPath string, volumeLabel string, entries []Entry) error {
	rootDirLBA := uint32(systemAreaSectors + 4)

	fileRecordsPreview := make([][]byte, len(entries))
	for i, e := range entries {
		fileRecordsPreview[i] = buildDirectoryRecord(0, uint32(len(e.Contents)), false, toISOFileID(e.Name))
	}
	rootDirLenPreview := packedLenForRecords(fileRecordsPreview)
	rootDirSectors := uint32(divCeil(rootDirLenPreview, sectorSize))
	firstFileLBA := rootDirLBA + rootDirSectors

	fileLBAs := make([]uint32, len(entries))
	next := firstFileLBA
	for i, e := range entries {
		fileLBAs[i] = next
		next += uint32(divCeil(len(e.Contents), sectorSize))
	}

	rootDirBytes := buildRootDirectoryBytes(rootDirLBA, rootDirLBA, entries, fileLBAs)
	volumeSpaceSize := next

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create iso: %w", err)
	}
	defer f.Close()

	if err := writeZeroedSectors(f, 0, systemAreaSectors); err != nil {
		return fmt.Errorf("write system area: %w", err)
	}

	pvd := buildPrimaryVolumeDescriptor(
		volumeLabel,
		volumeSpaceSize,
		rootDirLBA,
		uint32(len(rootDirBytes)),
		systemAreaSectors+2,
		systemAreaSectors+3,
	)
	if err := writeSectorAt(f, systemAreaSectors, pvd); err != nil {
		return fmt.Errorf("write pvd: %w", err)
	}

	terminator := buildVolumeTerminatorDescriptor()
	if err := writeSectorAt(f, systemAreaSectors+1, terminator); err != nil {
		return fmt.Errorf("write volume descriptor set terminator: %w", err)
	}

	pathTableLE := buildRootPathTable(true, rootDirLBA)
	pathTableBE := buildRootPathTable(false, rootDirLBA)
	if err := writeSectorAt(f, systemAreaSectors+2, pathTableLE); err != nil {
		return fmt.Errorf("write type-L path table: %w", err)
	}
	if err := writeSectorAt(f, systemAreaSectors+3, pathTableBE); err != nil {
		return fmt.Errorf("write type-M path table: %w", err)
	}

	if err := writeAtLBA(f, rootDirLBA, rootDirBytes); err != nil {
		return fmt.Errorf("write root directory: %w", err)
	}

	for i, e := range entries {
		if err := writeAtLBA(f, fileLBAs[i], e.Contents); err != nil {
			return fmt.Errorf("write file %q: %w", e.Name, err)
		}
	}

	return nil
}

func buildPrimaryVolumeDescriptor(volumeLabel string, volumeSpaceSize, rootDirLBA, rootDirDataLen, pathTableLELBA, pathTableBELBA uint32) []byte {
	pvd := make([]byte, sectorSize)
	pvd[0] = 1
	copy(pvd[1:6], "CD001")
	pvd[6] = 1

	writeASCIIPadded(pvd[8:40], "BENTO")
	writeASCIIPadded(pvd[40:72], volumeLabel)
	writeU32BothEndian(pvd[80:88], volumeSpaceSize)
	writeU16BothEndian(pvd[120:124], 1)
	writeU16BothEndian(pvd[124:128], 1)
	writeU16BothEndian(pvd[128:132], sectorSize)
	writeU32BothEndian(pvd[132:140], 10)

	putU32LE(pvd[140:144], pathTableLELBA)
	putU32BE(pvd[148:152], pathTableBELBA)

	rootDirRecord := buildDirectoryRecord(rootDirLBA, rootDirDataLen, true, []byte{0})
	copy(pvd[156:190], rootDirRecord)

	writeASCIIPadded(pvd[190:318], "BENTO")
	writeASCIIPadded(pvd[318:446], "BENTO")
	writeASCIIPadded(pvd[446:574], "BENTO")
	writeASCIIPadded(pvd[574:702], "BENTO")

	now := time.Now().UTC()
	writeVolumeDatetime(pvd[813:830], now)
	writeVolumeDatetime(pvd[830:847], now)
	pvd[881] = 1

	return pvd
}

func buildVolumeTerminatorDescriptor() []byte {
	term := make([]byte, sectorSize)
	term[0] = 255
	copy(term[1:6], "CD001")
	term[6] = 1
	return term
}

func buildRootPathTable(littleEndian bool, rootDirLBA uint32) []byte {
	data := make([]byte, sectorSize)
	data[0] = 1
	data[1] = 0
	if littleEndian {
		putU32LE(data[2:6], rootDirLBA)
		putU16LE(data[6:8], 1)
	} else {
		putU32BE(data[2:6], rootDirLBA)
		putU16BE(data[6:8], 1)
	}
	data[8] = 0
	data[9] = 0
	return data
}

func buildRootDirectoryBytes(selfLBA, parentLBA uint32, entries []Entry, entryLBAs []uint32) []byte {
	fileRecords := make([][]byte, len(entries))
	for i, e := range entries {
		fileRecords[i] = buildDirectoryRecord(entryLBAs[i], uint32(len(e.Contents)), false, toISOFileID(e.Name))
	}

	provisionalRootLen := uint32(packedLenForRecords(fileRecords))
	selfRecord := buildDirectoryRecord(selfLBA, provisionalRootLen, true, []byte{0})
	parentRecord := buildDirectoryRecord(parentLBA, provisionalRootLen, true, []byte{1})

	records := make([][]byte, 0, 2+len(fileRecords))
	records = append(records, selfRecord, parentRecord)
	records = append(records, fileRecords...)

	return packRecordsToSectors(records)
}

// packedLenForRecords computes the packed byte length of {., .., files}
// without needing real self/parent LBAs. Used for the two-pass layout:
// build file records, compute packed length, then repack at real offsets.
func packedLenForRecords(fileRecords [][]byte) int {
	dotLen := len(buildDirectoryRecord(0, 0, true, []byte{0}))
	dotDotLen := len(buildDirectoryRecord(0, 0, true, []byte{1}))

	records := make([][]byte, 0, 2+len(fileRecords))
	records = append(records, make([]byte, dotLen), make([]byte, dotDotLen))
	records = append(records, fileRecords...)

	return len(packRecordsToSectors(records))
}

func toISOFileID(name string) []byte {
	mapped := make([]byte, 0, len(name)+2)
	for _, b := range []byte(name) {
		var normalized byte
		switch {
		case b >= 'a' && b <= 'z':
			normalized = b - ('a' - 'A')
		case (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_' || b == '-':
			normalized = b
		default:
			normalized = '_'
		}
		mapped = append(mapped, normalized)
	}
	mapped = append(mapped, ';', '1')
	return mapped
}

func buildDirectoryRecord(extentLBA, dataLen uint32, isDir bool, fileID []byte) []byte {
	padding := 0
	if len(fileID)%2 == 0 {
		padding = 1
	}
	recordLen := 33 + len(fileID) + padding
	record := make([]byte, recordLen)

	record[0] = byte(recordLen)
	record[1] = 0

	putU32LE(record[2:6], extentLBA)
	putU32BE(record[6:10], extentLBA)
	putU32LE(record[10:14], dataLen)
	putU32BE(record[14:18], dataLen)

	now := time.Now().UTC()
	record[18] = byte(now.Year() - 1900)
	record[19] = byte(now.Month())
	record[20] = byte(now.Day())
	record[21] = byte(now.Hour())
	record[22] = byte(now.Minute())
	record[23] = byte(now.Second())
	record[24] = 0

	if isDir {
		record[25] = 0x02
	} else {
		record[25] = 0x00
	}
	record[26] = 0
	record[27] = 0
	putU16LE(record[28:30], 1)
	putU16BE(record[30:32], 1)
	record[32] = byte(len(fileID))
	copy(record[33:33+len(fileID)], fileID)

	return record
}

// packRecordsToSectors lays out directory records one after another,
// pushing a record that would cross a sector boundary to the next
// sector (zero-padding the remainder), then pads the whole buffer up
// to a full sector.
func packRecordsToSectors(records [][]byte) []byte {
	out := make([]byte, 0, sectorSize)
	for _, record := range records {
		usedInSector := len(out) % sectorSize
		remaining := sectorSize - usedInSector
		if len(record) > remaining {
			out = append(out, make([]byte, remaining)...)
		}
		out = append(out, record...)
	}

	pad := (sectorSize - (len(out) % sectorSize)) % sectorSize
	if pad > 0 {
		out = append(out, make([]byte, pad)...)
	}
	return out
}

func writeZeroedSectors(f *os.File, startLBA, sectorCount uint32) error {
	zero := make([]byte, sectorSize)
	for i := uint32(0); i < sectorCount; i++ {
		if err := writeSectorAt(f, startLBA+i, zero); err != nil {
			return err
		}
	}
	return nil
}

func writeSectorAt(f *os.File, lba uint32, data []byte) error {
	if len(data) != sectorSize {
		return fmt.Errorf("sector write requires %d-byte data, got %d", sectorSize, len(data))
	}
	if _, err := f.WriteAt(data, int64(lba)*sectorSize); err != nil {
		return err
	}
	return nil
}

func writeAtLBA(f *os.File, lba uint32, data []byte) error {
	if _, err := f.WriteAt(data, int64(lba)*sectorSize); err != nil {
		return err
	}
	pad := (sectorSize - (len(data) % sectorSize)) % sectorSize
	if pad > 0 {
		if _, err := f.WriteAt(make([]byte, pad), int64(lba)*sectorSize+int64(len(data))); err != nil {
			return err
		}
	}
	return nil
}

func writeASCIIPadded(dst []byte, input string) {
	for i := range dst {
		dst[i] = ' '
	}
	b := []byte(input)
	n := len(b)
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, b[:n])
}

func writeU16BothEndian(dst []byte, value uint16) {
	putU16LE(dst[0:2], value)
	putU16BE(dst[2:4], value)
}

func writeU32BothEndian(dst []byte, value uint32) {
	putU32LE(dst[0:4], value)
	putU32BE(dst[4:8], value)
}

func writeVolumeDatetime(dst []byte, ts time.Time) {
	text := fmt.Sprintf("%04d%02d%02d%02d%02d%02d00",
		ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second())
	copy(dst, text)
	dst[16] = 0
}

func putU16LE(dst []byte, v uint16) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
}

func putU16BE(dst []byte, v uint16) {
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
}

func putU32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func putU32BE(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

func divCeil(value, divisor int) int {
	if value == 0 {
		return 0
	}
	return 1 + (value-1)/divisor
}
