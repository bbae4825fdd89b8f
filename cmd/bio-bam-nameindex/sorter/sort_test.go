package sorter

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/readidx/encoding/bam"
	"github.com/grailbio/readidx/encoding/bam/bamtest"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shuffledNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("read%03d", (i*7919)%(n/2+1))
	}
	return names
}

// checkSorted verifies that the records of path are the records generated
// from names, sorted by name, with ties in input order.
func checkSorted(t *testing.T, path string, names []string) {
	header, recs := bamtest.ReadBAM(t, path)
	assert.Equal(t, sam.QueryName, header.SortOrder)
	require.Equal(t, len(names), len(recs))

	type key struct {
		name string
		seq  int
	}
	want := make([]key, len(names))
	for i, name := range names {
		want[i] = key{name, i}
	}
	sort.SliceStable(want, func(i, j int) bool { return want[i].name < want[j].name })
	for i, rec := range recs {
		assert.Equal(t, want[i].name, rec.Name, "record %d", i)
		assert.Equal(t, want[i].seq, bamtest.Seq(rec), "record %d", i)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	entries, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		t.Errorf("%s: unexpected file %s", dir, e.Name())
	}
}

func TestSortBatchSizes(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	runDir := filepath.Join(tempDir, "runs")
	require.NoError(t, os.Mkdir(runDir, 0755))

	const n = 101
	names := shuffledNames(n)
	src := filepath.Join(tempDir, "src.bam")
	bamtest.WriteBAM(t, src, bamtest.GenerateSAM(names))

	for _, batchSize := range []int{1, 2, 7, n, n + 10, 0} {
		for _, noCompress := range []bool{false, true} {
			dst := filepath.Join(tempDir, fmt.Sprintf("dst-%d-%v.bam", batchSize, noCompress))
			require.NoError(t, SortFile(src, dst, SortOptions{
				BatchSize:          batchSize,
				TmpDir:             runDir,
				NoCompressTmpFiles: noCompress,
			}))
			checkSorted(t, dst, names)
			assertEmptyDir(t, runDir)
			_, err := os.Stat(dst + ".inprogress")
			assert.True(t, os.IsNotExist(err))
		}
	}
}

// sortManyRuns sorts n records with one record per run and checks the result
// and the cleanup of intermediate runs.
func sortManyRuns(t *testing.T, n int) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	runDir := filepath.Join(tempDir, "runs")
	require.NoError(t, os.Mkdir(runDir, 0755))

	names := shuffledNames(n)
	src := filepath.Join(tempDir, "src.bam")
	bamtest.WriteBAM(t, src, bamtest.GenerateSAM(names))
	dst := filepath.Join(tempDir, "dst.bam")
	require.NoError(t, SortFile(src, dst, SortOptions{BatchSize: 1, TmpDir: runDir}))
	checkSorted(t, dst, names)
	assertEmptyDir(t, runDir)
}

func TestSortMoreRunsThanFanin(t *testing.T) {
	// 600 runs need one intermediate pass at the default fan-in.
	sortManyRuns(t, 600)
}

func TestSortMultipleMergePasses(t *testing.T) {
	saved := maxMergeFanin
	defer func() { maxMergeFanin = saved }()
	for _, fanin := range []int{2, 3, 10} {
		maxMergeFanin = fanin
		// 101 runs take 6 intermediate passes at fan-in 2, and 2 at fan-in 10.
		sortManyRuns(t, 101)
	}
}

func TestSortScenario(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	src := filepath.Join(tempDir, "src.bam")
	bamtest.WriteBAM(t, src, bamtest.GenerateSAM([]string{"C", "A", "B", "A", "D"}))
	dst := filepath.Join(tempDir, "dst.bam")
	require.NoError(t, SortFile(src, dst, SortOptions{BatchSize: 2, TmpDir: tempDir}))

	_, recs := bamtest.ReadBAM(t, dst)
	assert.Equal(t, []string{"A", "A", "B", "C", "D"}, bamtest.Names(recs))
	var seqs []int
	for _, rec := range recs {
		seqs = append(seqs, bamtest.Seq(rec))
	}
	assert.Equal(t, []int{1, 3, 2, 0, 4}, seqs)
}

func TestSortIdempotent(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	src := filepath.Join(tempDir, "src.bam")
	bamtest.WriteBAM(t, src, bamtest.GenerateSAM(shuffledNames(60)))
	once := filepath.Join(tempDir, "once.bam")
	twice := filepath.Join(tempDir, "twice.bam")
	require.NoError(t, SortFile(src, once, SortOptions{BatchSize: 8, TmpDir: tempDir}))
	require.NoError(t, SortFile(once, twice, SortOptions{BatchSize: 5, TmpDir: tempDir}))

	_, a := bamtest.ReadBAM(t, once)
	_, b := bamtest.ReadBAM(t, twice)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].String(), b[i].String())
	}

	d0, err := bam.DigestFile(src)
	require.NoError(t, err)
	d1, err := bam.DigestFile(twice)
	require.NoError(t, err)
	assert.Equal(t, d0, d1)
}

func TestSortEmpty(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	src := filepath.Join(tempDir, "src.bam")
	bamtest.WriteBAM(t, src, bamtest.Header)
	dst := filepath.Join(tempDir, "dst.bam")
	require.NoError(t, SortFile(src, dst, SortOptions{BatchSize: 3, TmpDir: tempDir}))
	header, recs := bamtest.ReadBAM(t, dst)
	assert.Equal(t, 0, len(recs))
	assert.Equal(t, 2, len(header.Refs()))
	assert.Equal(t, sam.QueryName, header.SortOrder)
}

func TestSortUBAM(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	names := shuffledNames(30)
	src := filepath.Join(tempDir, "src.bam")
	bamtest.WriteBAM(t, src, bamtest.GenerateSAM(names))
	dst := filepath.Join(tempDir, "dst.ubam")
	require.NoError(t, SortFile(src, dst, SortOptions{BatchSize: 4, TmpDir: tempDir, Format: bam.UBAM}))
	checkSorted(t, dst, names)
}

func TestSortRejectsSAM(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	runDir := filepath.Join(tempDir, "runs")
	require.NoError(t, os.Mkdir(runDir, 0755))

	src := filepath.Join(tempDir, "src.sam")
	require.NoError(t, ioutil.WriteFile(src, []byte(bamtest.GenerateSAM([]string{"b", "a"})), 0644))
	dst := filepath.Join(tempDir, "dst.bam")
	err := SortFile(src, dst, SortOptions{TmpDir: runDir})
	require.Error(t, err)
	assert.True(t, errors.Is(errors.NotSupported, err), "err: %v", err)
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
	assertEmptyDir(t, runDir)
}

func TestSorterDiscard(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	runDir := filepath.Join(tempDir, "runs")
	require.NoError(t, os.Mkdir(runDir, 0755))

	src := filepath.Join(tempDir, "src.bam")
	bamtest.WriteBAM(t, src, bamtest.GenerateSAM(shuffledNames(20)))
	r, err := bam.Open(src)
	require.NoError(t, err)
	dst := filepath.Join(tempDir, "dst.bam")
	s := NewSorter(dst, r.Header(), SortOptions{BatchSize: 3, TmpDir: runDir})
	for r.Scan() {
		s.AddRecord(r.Record())
	}
	require.NoError(t, r.Err())
	require.NoError(t, r.Close())
	require.NoError(t, s.Err())

	entries, err := ioutil.ReadDir(runDir)
	require.NoError(t, err)
	assert.Equal(t, 6, len(entries))

	s.Discard()
	assertEmptyDir(t, runDir)
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, s.Close())
}

func TestSortMissingTmpDir(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	src := filepath.Join(tempDir, "src.bam")
	bamtest.WriteBAM(t, src, bamtest.GenerateSAM(shuffledNames(10)))
	dst := filepath.Join(tempDir, "dst.bam")
	err := SortFile(src, dst, SortOptions{BatchSize: 2, TmpDir: filepath.Join(tempDir, "nonexistent")})
	require.Error(t, err)
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestClassifyNoSpace(t *testing.T) {
	noSpace := &os.PathError{Op: "write", Path: "/tmp/x", Err: syscall.ENOSPC}
	for _, err := range []error{
		noSpace,
		errors.E(noSpace, "write run"),
		errors.E(errors.E(noSpace, "inner"), "outer"),
	} {
		got := classify(err)
		assert.True(t, errors.Is(errors.Unavailable, got), "err: %v", got)
	}
	other := &os.PathError{Op: "write", Path: "/tmp/x", Err: syscall.EIO}
	assert.Equal(t, error(other), classify(other))
}

func TestRunSmallBuffer(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)

	src := filepath.Join(tempDir, "src.bam")
	bamtest.WriteBAM(t, src, bamtest.GenerateSAM([]string{"a", "b"}))
	r, err := bam.Open(src)
	require.NoError(t, err)
	var recs []bam.Record
	for r.Scan() {
		recs = append(recs, r.Record())
	}
	require.NoError(t, r.Err())
	require.NoError(t, r.Close())

	runPath := filepath.Join(tempDir, "run")
	out, err := os.Create(runPath)
	require.NoError(t, err)
	var e errors.Once
	w := newRunWriter(out, true, &e)
	for _, rec := range recs {
		w.add(rec)
	}
	assert.True(t, cap(w.buf) < runBlockSize, "cap %d", cap(w.buf))
	w.finish()
	require.NoError(t, out.Close())
	require.NoError(t, e.Err())

	rr := newRunReader(runPath, &e)
	var names []string
	for rr.scan() {
		names = append(names, rr.record().Name)
	}
	rr.close()
	require.NoError(t, e.Err())
	assert.Equal(t, []string{"a", "b"}, names)
}
