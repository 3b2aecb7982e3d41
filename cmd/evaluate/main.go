// Command evaluate runs the distributed face detection evaluation.
//
//	evaluate run --work-dir ./runs/yolov5face_s     # one worker, env from a launcher
//	evaluate launch --nproc-per-node 4 --work-dir ./runs/yolov5face_s
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
