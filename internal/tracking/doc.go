// Package tracking serves the public open-pixel and click-redirect endpoint
// and moves the resulting engagement events either straight into the
// tracking service or through an SQS queue drained by a Consumer.
package tracking
