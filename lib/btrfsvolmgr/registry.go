// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"
	"github.com/dustin/go-humanize"

	"git.lukeshu.com/btrfs-progs-ng/lib/binstruct"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfstree"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
	"git.lukeshu.com/btrfs-progs-ng/lib/containers"
)

// btrfsSuperblockMagic is the fixed byte sequence at a known offset
// within the 4KiB candidate block that identifies a btrfs superblock.
var btrfsSuperblockMagic = [8]byte{'_', 'B', 'H', 'R', 'f', 'S', '_', 'M'}

// Device is one block device known to belong to a filesystem, along
// with its scanned superblock geometry. Unlike the C original's
// intrusive list node, a Device here is an ordinary struct held by
// value-reference in FsDevices.Devices; chunk allocation walks that
// slice in its stored order and does not rotate or reorder it.
type Device struct {
	DevID      btrfsvol.DeviceID
	UUID       btrfsprim.UUID
	FSID       btrfsprim.UUID
	Path       string
	TotalBytes uint64
	BytesUsed  uint64
	IOAlign    uint32
	IOWidth    uint32
	SectorSize uint32
	Type       uint64

	// Generation is the superblock generation this device was
	// last scanned at; used by DeviceListAdd to track latest_trans.
	Generation btrfsprim.Generation

	handle *btrfs.Device
}

// Handle returns the open host file, or nil if OpenAll has not been
// called (or CloseAll has already run).
func (d *Device) Handle() *btrfs.Device { return d.handle }

// FsDevices is one filesystem's device set, keyed by its FSID. It is
// the in-memory registry populated by scanning superblocks, per §4.1
// of the volume manager design.
type FsDevices struct {
	FSID btrfsprim.UUID

	Devices []*Device
	byDevID map[btrfsvol.DeviceID]*Device

	LatestDevID btrfsvol.DeviceID
	LatestTrans btrfsprim.Generation

	LowestDevID btrfsvol.DeviceID

	latestHandle *btrfs.Device
	lowestHandle *btrfs.Device
}

// Lookup returns the Device with the given devid, or nil.
func (fsd *FsDevices) Lookup(devid btrfsvol.DeviceID) *Device {
	if fsd.byDevID == nil {
		return nil
	}
	return fsd.byDevID[devid]
}

func (fsd *FsDevices) index(dev *Device) {
	if fsd.byDevID == nil {
		fsd.byDevID = make(map[btrfsvol.DeviceID]*Device, len(fsd.Devices))
	}
	fsd.byDevID[dev.DevID] = dev
}

// Registry is the process-wide set of known filesystems, keyed by
// FSID -- "a single global list of known filesystems ... initialized
// at program start and torn down on exit" (§5). Lookups are
// concurrency-safe so that two goroutines scanning different
// candidate devices of the same filesystem converge correctly; the
// mutation each does to the FsDevices they get back is still the
// caller's responsibility to serialize (mirroring the "no concurrent
// chunk allocation and map-block lookup" rule from §5).
type Registry struct {
	byFSID containers.SyncMap[btrfsprim.UUID, *FsDevices]
}

// NewRegistry creates an empty, process-wide filesystem registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) findOrCreate(fsid btrfsprim.UUID, devid btrfsvol.DeviceID, foundTransID btrfsprim.Generation) *FsDevices {
	if fsd, ok := r.byFSID.Load(fsid); ok {
		return fsd
	}
	fsd := &FsDevices{
		FSID:        fsid,
		LatestDevID: devid,
		LatestTrans: foundTransID,
		LowestDevID: ^btrfsvol.DeviceID(0),
	}
	actual, loaded := r.byFSID.LoadOrStore(fsid, fsd)
	if loaded {
		return actual
	}
	return fsd
}

// DeviceListAdd implements the §4.1 device_list_add algorithm: find
// or create the FsDevices for this FSID, find or create the Device
// for this devid within it, and update latest_devid/latest_trans and
// lowest_devid so that they converge on the freshest and lowest
// superblock seen across repeated calls.
func (r *Registry) DeviceListAdd(path string, sb *btrfstree.Superblock, devid btrfsvol.DeviceID) (*FsDevices, error) {
	foundTransID := sb.Generation

	fsd := r.findOrCreate(sb.FSUUID, devid, foundTransID)

	dev := fsd.Lookup(devid)
	if dev == nil {
		dev = &Device{
			DevID: devid,
			FSID:  sb.FSUUID,
			Path:  path,
		}
		fsd.Devices = append(fsd.Devices, dev)
		fsd.index(dev)
	}
	dev.UUID = sb.DevItem.DevUUID
	dev.TotalBytes = sb.DevItem.NumBytes
	dev.BytesUsed = sb.DevItem.NumBytesUsed
	dev.IOAlign = sb.DevItem.IOOptimalAlign
	dev.IOWidth = sb.DevItem.IOOptimalWidth
	dev.SectorSize = sb.DevItem.IOMinSize
	dev.Type = sb.DevItem.Type
	dev.Generation = foundTransID

	if foundTransID > fsd.LatestTrans {
		fsd.LatestDevID = devid
		fsd.LatestTrans = foundTransID
	}
	if devid < fsd.LowestDevID {
		fsd.LowestDevID = devid
	}

	return fsd, nil
}

// ScanOneDevice reads the 4KiB superblock candidate at superOffset
// from path, validates its magic, and folds it into the registry via
// DeviceListAdd. Returns the filesystem it belongs to and the
// num_devices the superblock claims for that filesystem.
//
// Per §7's user-visible failure behavior, a caller scanning a
// directory of candidate paths should treat ErrNotBtrfs and I/O
// errors as "skip this candidate", not as fatal.
func (r *Registry) ScanOneDevice(ctx context.Context, path string, superOffset btrfsvol.PhysicalAddr) (*FsDevices, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("btrfsvolmgr.ScanOneDevice: %w", err)
	}
	defer f.Close()

	buf := make([]byte, binstruct.StaticSize(btrfstree.Superblock{}))
	if _, err := f.ReadAt(buf, int64(superOffset)); err != nil {
		return nil, 0, fmt.Errorf("btrfsvolmgr.ScanOneDevice: %s: %w", path, err)
	}

	var sb btrfstree.Superblock
	if _, err := binstruct.Unmarshal(buf, &sb); err != nil {
		return nil, 0, fmt.Errorf("btrfsvolmgr.ScanOneDevice: %s: %w", path, err)
	}
	if sb.Magic != btrfsSuperblockMagic {
		return nil, 0, fmt.Errorf("%s: %w: bad magic %q", path, ErrNotBtrfs, sb.Magic[:])
	}

	devid := sb.DevItem.DevID
	dlog.Debugf(ctx, "btrfsvolmgr: found devid=%v fsid=%v on %q (total_bytes=%v)",
		devid, sb.FSUUID, path, humanize.Bytes(sb.DevItem.NumBytes))

	fsd, err := r.DeviceListAdd(path, &sb, devid)
	if err != nil {
		return nil, 0, err
	}
	return fsd, sb.NumDevices, nil
}

// OpenAll opens a host file descriptor for every known device in
// fsd, remembering the device whose devid==LatestDevID as the
// "latest" handle and the one whose devid==LowestDevID as the
// "lowest" handle. If any open fails mid-iteration, every descriptor
// already opened is closed before returning the error.
func (fsd *FsDevices) OpenAll(ctx context.Context, flag int) error {
	for i, dev := range fsd.Devices {
		f, err := os.OpenFile(dev.Path, flag, 0)
		if err != nil {
			_ = fsd.closeAllFrom(fsd.Devices[:i])
			return fmt.Errorf("btrfsvolmgr.OpenAll: %q: %w", dev.Path, err)
		}
		dev.handle = &btrfs.Device{File: f}
		dlog.Debugf(ctx, "btrfsvolmgr: opened %q devid=%v", dev.Path, dev.DevID)
		if dev.DevID == fsd.LatestDevID {
			fsd.latestHandle = dev.handle
		}
		if dev.DevID == fsd.LowestDevID {
			fsd.lowestHandle = dev.handle
		}
	}
	return nil
}

func (fsd *FsDevices) closeAllFrom(devs []*Device) error {
	var errs derror.MultiError
	for _, dev := range devs {
		if dev.handle == nil {
			continue
		}
		if err := dev.handle.Close(); err != nil {
			errs = append(errs, err)
		}
		dev.handle = nil
	}
	fsd.latestHandle = nil
	fsd.lowestHandle = nil
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CloseAll releases every open host file descriptor in fsd. After
// CloseAll returns, Device.Handle() is nil for every device, so
// subsequent I/O against a stale handle fails loudly rather than
// targeting a reused fd.
func (fsd *FsDevices) CloseAll() error {
	return fsd.closeAllFrom(fsd.Devices)
}

// LatestHandle returns the open handle of the device with the
// highest-seen generation, or nil if OpenAll has not run.
func (fsd *FsDevices) LatestHandle() *btrfs.Device { return fsd.latestHandle }

// LowestHandle returns the open handle of the device with the
// lowest devid, or nil if OpenAll has not run.
func (fsd *FsDevices) LowestHandle() *btrfs.Device { return fsd.lowestHandle }
