// Package dataset loads voxel classification samples from a directory.
//
// A sample is a point cloud stored as ASCII PLY plus two label files sharing
// its stem:
//
//	chair_0001.ply       vertices in grid coordinates
//	chair_0001_cls.txt   class label (first integer)
//	chair_0001_seg.txt   per-voxel labels, D·H·W integers in d,h,w order
//
// Samples are sorted by file name and split into a training prefix and a
// validation suffix. Batches wrap around inside their split.
package dataset
